package llm

import (
	"context"
	"time"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态、可重试性与降级策略。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"      // 参数/格式错误
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"         // 未授权或密钥失效
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"            // 权限或内容策略拒绝
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"         // 上游或本地限流
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"       // 额度/配额用尽
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"     // 模型过载
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"     // 上游超时
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"       // 上游 5xx/网络错误
	ErrEmptyCompletion     ErrorCode = "LLM_EMPTY_COMPLETION"     // 响应无任何内容
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE" // Provider 不可用
)

// Error 是 Provider 返回的结构化错误。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return "[" + string(e.Code) + "] " + e.Message + ": " + e.Cause.Error()
	}
	return "[" + string(e.Code) + "] " + e.Message
}

// Unwrap 返回底层原因。
func (e *Error) Unwrap() error { return e.Cause }

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 单条对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 统一聊天请求
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ChatUsage token 用量
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice 单个候选回复
type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

// ChatResponse 统一聊天响应
type ChatResponse struct {
	ID       string       `json:"id,omitempty"`
	Model    string       `json:"model,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Choices  []ChatChoice `json:"choices"`
	Usage    *ChatUsage   `json:"usage,omitempty"`
	Cached   bool         `json:"cached,omitempty"`
}

// Text 返回首个候选的文本内容，没有候选时返回空串。
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 是 LLM 提供者接口。实现必须并发安全。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查，返回延迟与可用性信息
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
