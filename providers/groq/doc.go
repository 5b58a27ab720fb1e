// Copyright (c) ResearchFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 groq 提供 Groq 推理平台的 Provider 适配实现。Groq 暴露
OpenAI 兼容的 Chat Completions 端点（/openai/v1/chat/completions），
本包用原生 net/http 封装该端点并做统一错误映射。

# 核心结构体

  - Provider — llm.Provider 实现，持有 http.Client 与配置
  - Config — APIKey、BaseURL、Model、Timeout

# 错误映射

HTTP 状态码按 llm.ErrorCode 分类：401/403 鉴权类不可重试，
429 与 5xx 标记 Retryable，请求超时映射为 LLM_UPSTREAM_TIMEOUT。
空 choices 响应视为 LLM_EMPTY_COMPLETION。

# 默认模型

未指定时使用 llama-3.3-70b-versatile。
*/
package groq
