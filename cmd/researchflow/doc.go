// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 ResearchFlow 服务端程序入口。

# 概述

cmd/researchflow 是调研管线的可执行入口，提供一次性执行与常驻服务
两种形态。程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus
指标采集，以及 SSE 进度推送。

# 主要能力

  - 子命令：run（执行单次调研并输出报告）、serve（启动 HTTP 服务）、
    version、health
  - HTTP 端点：POST /research（JSON 或 SSE 进度流）、GET /healthz、
    GET /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 等待在途请求
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
