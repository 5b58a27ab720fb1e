package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/llm"
)

// Config Groq Provider 配置
type Config struct {
	APIKey  string        `yaml:"api_key" json:"api_key"`
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Model   string        `yaml:"model" json:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Provider implements the Groq LLM provider.
// Groq exposes an OpenAI-compatible chat completions API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// DefaultModel 默认模型
const DefaultModel = "llama-3.3-70b-versatile"

// New creates a Groq provider instance.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(zap.String("provider", "groq")),
	}
}

func (p *Provider) Name() string { return "groq" }

// HealthCheck probes the models endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency}, fmt.Errorf("groq health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}

	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// OpenAI-compatible wire types
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type openAIChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason"`
	Message      openAIMessage `json:"message"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
}

type openAIErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

func convertMessages(msgs []llm.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openAIMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var er openAIErrorResp
	if err := json.Unmarshal(data, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func mapError(status int, msg string, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		// 额度类 400 单独归类
		if strings.Contains(strings.ToLower(msg), "quota") ||
			strings.Contains(strings.ToLower(msg), "credit") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case 529: // model overloaded
		return &llm.Error{Code: llm.ErrModelOverloaded, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

// Completion 发起同步聊天请求。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	body := openAIRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	payload, _ := json.Marshal(body)

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/")),
		bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &llm.Error{Code: llm.ErrUpstreamTimeout, Message: "groq request timed out", HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Provider: p.Name(), Cause: err}
		}
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	var oaResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(), Cause: err}
	}

	if len(oaResp.Choices) == 0 {
		return nil, &llm.Error{Code: llm.ErrEmptyCompletion, Message: "groq returned no choices", HTTPStatus: http.StatusBadGateway, Provider: p.Name()}
	}

	p.logger.Debug("completion finished",
		zap.String("model", oaResp.Model),
		zap.Duration("latency", time.Since(start)),
	)

	return toChatResponse(oaResp, p.Name()), nil
}

func toChatResponse(oa openAIResponse, provider string) *llm.ChatResponse {
	out := &llm.ChatResponse{
		ID:       oa.ID,
		Model:    oa.Model,
		Provider: provider,
	}
	for _, ch := range oa.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        ch.Index,
			FinishReason: ch.FinishReason,
			Message: llm.Message{
				Role:    llm.Role(ch.Message.Role),
				Content: ch.Message.Content,
			},
		})
	}
	if oa.Usage != nil {
		out.Usage = &llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	return out
}
