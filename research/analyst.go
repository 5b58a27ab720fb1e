package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Analyst 从全部发现中提炼模式与洞察。重试进入时必须吸收 Critic 的
// 拒绝原因，产出与上一版实质不同的分析。
type Analyst struct {
	gen         *generator
	prompts     *PromptSet
	tokenBudget int
	logger      *zap.Logger
}

// NewAnalyst creates the analysis stage. tokenBudget bounds the size of the
// compiled findings block fed to the model; <= 0 disables the bound.
func NewAnalyst(gen *generator, prompts *PromptSet, tokenBudget int, logger *zap.Logger) *Analyst {
	return &Analyst{
		gen:         gen,
		prompts:     prompts,
		tokenBudget: tokenBudget,
		logger:      logger.With(zap.String("stage", "analyst")),
	}
}

// Run replaces the analysis and advances to Validating.
func (a *Analyst) Run(ctx context.Context, s State) (State, error) {
	s = s.Clone()

	findings := compileFindings(s)
	if a.tokenBudget > 0 {
		before := countTokens(findings)
		findings = truncateToTokens(findings, a.tokenBudget)
		if after := countTokens(findings); after < before {
			a.logger.Warn("findings truncated to token budget",
				zap.Int("before", before),
				zap.Int("after", after),
			)
		}
	}

	reason := ""
	if s.Validation != nil && !s.Validation.Passed {
		reason = s.Validation.Reason
		a.logger.Info("re-analyzing after rejection",
			zap.Int("retry", s.RetryCount),
			zap.String("reason", reason),
		)
	}

	prompt, err := render("analyst", a.prompts.Analyst, map[string]string{
		"Query":    s.Query,
		"Findings": findings,
		"Reason":   reason,
	})
	if err != nil {
		return s, &AnalysisError{Cause: err}
	}

	analysis, err := a.gen.generate(ctx, prompt)
	if err != nil {
		return s, &AnalysisError{Cause: err}
	}

	s.Analysis = analysis
	s.Status = StatusValidating
	return s, nil
}

// compileFindings renders the findings in sub-question order so the prompt
// is deterministic for a given state.
func compileFindings(s State) string {
	var sb strings.Builder
	for i, q := range s.SubQuestions {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "Q: %s\nA: %s", q, s.Findings[q])
	}
	return sb.String()
}
