package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/researchflow/llm"
)

// generator 封装对 Generation 能力的调用：统一模型参数与单次超时。
type generator struct {
	provider    llm.Provider
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// generate sends one prompt and returns the completion text. Empty text is
// an error: no stage can do anything useful with a blank completion.
func (g *generator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.provider.Completion(ctx, &llm.ChatRequest{
		Model:       g.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Timeout:     g.timeout,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &llm.Error{
			Code:     llm.ErrEmptyCompletion,
			Message:  "completion returned empty text",
			Provider: resp.Provider,
		}
	}
	return text, nil
}

// SearchTool 为单个子问题检索原始资料。实现可以是真正的检索后端，
// 也可以是基于 Generation 能力的模拟检索（默认）。
type SearchTool interface {
	Search(ctx context.Context, topic, question string) (string, error)
}

// llmSearchTool is the default SearchTool: it asks the language model to
// answer the sub-question as if it had searched the web.
type llmSearchTool struct {
	gen     *generator
	prompts *PromptSet
}

// NewLLMSearchTool builds the generation-backed search stub.
func NewLLMSearchTool(provider llm.Provider, cfg Config, prompts *PromptSet) SearchTool {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &llmSearchTool{
		gen:     newGenerator(provider, cfg),
		prompts: prompts,
	}
}

func newGenerator(provider llm.Provider, cfg Config) *generator {
	return &generator{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.TimeoutPerCall,
	}
}

func (t *llmSearchTool) Search(ctx context.Context, topic, question string) (string, error) {
	prompt, err := render("researcher", t.prompts.Researcher, map[string]string{
		"Query":       topic,
		"SubQuestion": question,
	})
	if err != nil {
		return "", &ToolError{Cause: err}
	}
	text, err := t.gen.generate(ctx, prompt)
	if err != nil {
		return "", &ToolError{Cause: fmt.Errorf("lookup %q: %w", question, err)}
	}
	return text, nil
}
