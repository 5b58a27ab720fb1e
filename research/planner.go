package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// maxSubQuestions caps the decomposition size; the planner prompt asks for
// 4-6 but the model is not always obedient.
const maxSubQuestions = 6

// Planner 将调研问题分解为子问题。每次运行只执行一次，失败即终止。
type Planner struct {
	gen     *generator
	prompts *PromptSet
	logger  *zap.Logger
}

// NewPlanner creates the planning stage.
func NewPlanner(gen *generator, prompts *PromptSet, logger *zap.Logger) *Planner {
	return &Planner{
		gen:     gen,
		prompts: prompts,
		logger:  logger.With(zap.String("stage", "planner")),
	}
}

// Run decomposes the query into sub-questions and advances to Researching.
func (p *Planner) Run(ctx context.Context, s State) (State, error) {
	s = s.Clone()

	prompt, err := render("planner", p.prompts.Planner, map[string]string{"Query": s.Query})
	if err != nil {
		return s, &PlanningError{Cause: err}
	}

	raw, err := p.gen.generate(ctx, prompt)
	if err != nil {
		return s, &PlanningError{Cause: err}
	}

	questions, err := parseSubQuestions(raw)
	if err != nil {
		p.logger.Warn("decomposition unparsable", zap.Error(err))
		return s, &PlanningError{Cause: err}
	}

	if len(questions) < 4 {
		p.logger.Warn("decomposition smaller than requested", zap.Int("count", len(questions)))
	}
	p.logger.Info("query decomposed",
		zap.Int("sub_questions", len(questions)),
	)

	s.SubQuestions = questions
	s.Status = StatusResearching
	return s, nil
}

// parseSubQuestions parses the model output as a JSON string array,
// tolerating markdown code fences around it.
func parseSubQuestions(raw string) ([]string, error) {
	cleaned := stripCodeFence(raw)

	var questions []string
	if err := json.Unmarshal([]byte(cleaned), &questions); err != nil {
		return nil, fmt.Errorf("decomposition is not a JSON string array: %w", err)
	}

	seen := make(map[string]struct{}, len(questions))
	out := make([]string, 0, len(questions))
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == maxSubQuestions {
			break
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("decomposition produced no usable sub-questions")
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```...``` block, with an optional
// language marker.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// 丢掉语言标记行（如 ```json）
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
