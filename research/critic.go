package research

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Critic 是质量闸门:审查分析结论,裁决 VALID / INVALID。拒绝时带着
// 原因把流程送回 Analyst,重试额度耗尽则终止整个运行。
type Critic struct {
	gen        *generator
	prompts    *PromptSet
	maxRetries int
	logger     *zap.Logger
}

// NewCritic creates the validation stage. maxRetries is the number of
// re-analysis rounds allowed after the first rejection.
func NewCritic(gen *generator, prompts *PromptSet, maxRetries int, logger *zap.Logger) *Critic {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Critic{
		gen:        gen,
		prompts:    prompts,
		maxRetries: maxRetries,
		logger:     logger.With(zap.String("stage", "critic")),
	}
}

// Run records the verdict and routes: pass advances to Synthesizing, a
// rejection with budget left sends the run back to Analyzing, and an
// exhausted budget fails the run.
func (c *Critic) Run(ctx context.Context, s State) (State, error) {
	s = s.Clone()

	prompt, err := render("critic", c.prompts.Critic, map[string]any{
		"Query":        s.Query,
		"SubQuestions": s.SubQuestions,
		"Analysis":     s.Analysis,
	})
	if err != nil {
		return s, err
	}

	verdict, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return s, err
	}

	passed, reason := parseVerdict(verdict)
	s.Validation = &Validation{Passed: passed, Reason: reason}

	if passed {
		c.logger.Info("analysis accepted", zap.Int("retry", s.RetryCount))
		s.Status = StatusSynthesizing
		return s, nil
	}

	c.logger.Warn("analysis rejected",
		zap.Int("retry", s.RetryCount),
		zap.String("reason", reason),
	)
	s.Rejections = append(s.Rejections, reason)

	if s.RetryCount >= c.maxRetries {
		s.Status = StatusFailed
		return s, &ValidationExhaustedError{
			Retries:    s.RetryCount,
			Rejections: append([]string(nil), s.Rejections...),
		}
	}

	s.RetryCount++
	s.Status = StatusAnalyzing
	return s, nil
}

// parseVerdict interprets the critic's one-line verdict. INVALID is matched
// before VALID since the former contains the latter as a substring. A verdict
// that names neither token is treated as a rejection with the raw text as
// the reason.
func parseVerdict(verdict string) (passed bool, reason string) {
	trimmed := strings.TrimSpace(verdict)
	upper := strings.ToUpper(trimmed)

	if idx := strings.Index(upper, "INVALID"); idx >= 0 {
		reason = strings.TrimSpace(trimmed[idx+len("INVALID"):])
		reason = strings.TrimLeft(reason, ":：-— \t")
		if reason == "" {
			reason = "analysis rejected without a stated reason"
		}
		return false, reason
	}
	if strings.Contains(upper, "VALID") {
		return true, ""
	}
	return false, trimmed
}
