// =============================================================================
// 🎭 ScriptedProvider - 脚本化的 LLM Provider 模拟实现
// =============================================================================
// 按提示词片段匹配规则，顺序回放预置回复；支持错误注入与调用记录。
// 规则的回复用尽后会重复最后一条，便于写出确定性的多轮场景。
//
// 使用方法:
//
//	p := mocks.NewScriptedProvider().
//		On("research planner", `["q1", "q2", "q3", "q4"]`).
//		On("research validator", "INVALID: missing data", "VALID")
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/researchflow/llm"
)

type rule struct {
	fragment string
	replies  []string
	errs     []error
	hits     int
}

// ScriptedProvider 是 llm.Provider 的脚本化模拟实现。
type ScriptedProvider struct {
	mu    sync.Mutex
	rules []*rule
	calls []string
}

// NewScriptedProvider 创建新的 ScriptedProvider。
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{}
}

// On 注册一条规则：提示词包含 fragment 时依次返回 replies。
// 规则按注册顺序匹配，第一条命中的生效。
func (p *ScriptedProvider) On(fragment string, replies ...string) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, &rule{fragment: fragment, replies: replies})
	return p
}

// OnError 注册一条错误注入规则：提示词包含 fragment 时依次返回 errs。
func (p *ScriptedProvider) OnError(fragment string, errs ...error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules = append(p.rules, &rule{fragment: fragment, errs: errs})
	return p
}

// Calls 返回到目前为止收到的全部提示词。
func (p *ScriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// CallsMatching 返回包含 fragment 的提示词数量。
func (p *ScriptedProvider) CallsMatching(fragment string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if strings.Contains(c, fragment) {
			n++
		}
	}
	return n
}

// Completion 实现 llm.Provider。未命中任何规则返回确定性错误，
// 方便测试立刻暴露脚本与提示词的不一致。
func (p *ScriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}

	p.mu.Lock()
	p.calls = append(p.calls, prompt)
	var matched *rule
	for _, r := range p.rules {
		if strings.Contains(prompt, r.fragment) {
			matched = r
			break
		}
	}
	if matched == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("scripted provider: no rule matches prompt %q", truncate(prompt, 80))
	}
	hit := matched.hits
	matched.hits++
	p.mu.Unlock()

	if len(matched.errs) > 0 {
		if hit >= len(matched.errs) {
			hit = len(matched.errs) - 1
		}
		return nil, matched.errs[hit]
	}
	if hit >= len(matched.replies) {
		hit = len(matched.replies) - 1
	}
	return &llm.ChatResponse{
		ID:       fmt.Sprintf("scripted-%d", len(p.calls)),
		Model:    req.Model,
		Provider: "scripted",
		Choices: []llm.ChatChoice{{
			Index:        0,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: matched.replies[hit]},
			FinishReason: "stop",
		}},
	}, nil
}

// HealthCheck 实现 llm.Provider。
func (p *ScriptedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Name 实现 llm.Provider。
func (p *ScriptedProvider) Name() string { return "scripted" }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
