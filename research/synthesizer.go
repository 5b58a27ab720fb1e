package research

import (
	"context"

	"go.uber.org/zap"
)

// Synthesizer 把通过验证的分析写成最终研究报告。
type Synthesizer struct {
	gen     *generator
	prompts *PromptSet
	logger  *zap.Logger
}

func NewSynthesizer(gen *generator, prompts *PromptSet, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		gen:     gen,
		prompts: prompts,
		logger:  logger.With(zap.String("stage", "synthesizer")),
	}
}

// Run produces the report and marks the run as succeeded.
func (sy *Synthesizer) Run(ctx context.Context, s State) (State, error) {
	s = s.Clone()

	prompt, err := render("synthesizer", sy.prompts.Synthesizer, map[string]string{
		"Query":    s.Query,
		"Analysis": s.Analysis,
	})
	if err != nil {
		return s, err
	}

	report, err := sy.gen.generate(ctx, prompt)
	if err != nil {
		return s, err
	}

	sy.logger.Info("report synthesized", zap.Int("chars", len(report)))
	s.Report = report
	s.Status = StatusSucceeded
	return s, nil
}
