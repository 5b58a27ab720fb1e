// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层。

# 概述

本包屏蔽不同模型服务商在接口、鉴权和错误语义上的差异，对上层
（research 各阶段）暴露一致的请求与响应模型。编排逻辑只依赖
[Provider] 接口，因此可以用确定性的假实现做测试，与具体厂商解耦。

# 核心接口

  - [Provider]：Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：统一的请求与响应模型
  - [Error]：带错误码、可重试标记与 HTTP 状态的结构化错误

# 装饰器

  - [WithCache]：按请求指纹缓存响应（本地 LRU + 可选 Redis 二级）
  - [WithRateLimit]：对外呼叫限流（golang.org/x/time/rate）
*/
package llm
