package research

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PlaceholderFinding 记录单条检索失败时的降级占位文本。
const PlaceholderFinding = "no information found"

// Researcher 为每个子问题执行一次检索。单条失败降级为占位发现，
// 全部失败才算阶段失败。
type Researcher struct {
	tool        SearchTool
	concurrency int
	logger      *zap.Logger
}

// NewResearcher creates the research stage. concurrency bounds the number of
// in-flight lookups; values below 1 mean sequential.
func NewResearcher(tool SearchTool, concurrency int, logger *zap.Logger) *Researcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Researcher{
		tool:        tool,
		concurrency: concurrency,
		logger:      logger.With(zap.String("stage", "researcher")),
	}
}

// Run gathers one finding per sub-question and advances to Analyzing.
// Lookups run concurrently but results are merged by sub-question identity,
// so the outcome is independent of completion order.
func (r *Researcher) Run(ctx context.Context, s State) (State, error) {
	s = s.Clone()

	results := make([]string, len(s.SubQuestions))
	failures := make([]error, len(s.SubQuestions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, q := range s.SubQuestions {
		i, q := i, q
		g.Go(func() error {
			text, err := r.tool.Search(gctx, s.Query, q)
			if err != nil {
				// 单条失败不终止整个阶段
				r.logger.Warn("lookup failed, using placeholder",
					zap.String("sub_question", q),
					zap.Error(err),
				)
				results[i] = PlaceholderFinding
				failures[i] = err
				return nil
			}
			results[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return s, err
	}

	// 取消优先于降级：不能把取消伪装成占位发现
	if err := ctx.Err(); err != nil {
		return s, err
	}

	failed := 0
	findings := make(map[string]string, len(s.SubQuestions))
	for i, q := range s.SubQuestions {
		findings[q] = results[i]
		if failures[i] != nil {
			failed++
		}
	}

	if failed == len(s.SubQuestions) && len(s.SubQuestions) > 0 {
		return s, &ResearchError{Attempted: len(s.SubQuestions), Cause: failures[0]}
	}

	r.logger.Info("research complete",
		zap.Int("findings", len(findings)),
		zap.Int("degraded", failed),
	)

	s.Findings = findings
	s.Status = StatusAnalyzing
	return s, nil
}
