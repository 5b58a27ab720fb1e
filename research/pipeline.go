package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/workflow"
)

// 五个阶段对应的图节点名。
const (
	NodePlanning     workflow.State = "planning"
	NodeResearching  workflow.State = "researching"
	NodeAnalyzing    workflow.State = "analyzing"
	NodeValidating   workflow.State = "validating"
	NodeSynthesizing workflow.State = "synthesizing"
)

// Config 控制管线的模型参数与重试/并发预算。
type Config struct {
	// Model is the model identifier passed to the provider.
	Model string
	// Temperature and MaxTokens apply to every stage call.
	Temperature float32
	MaxTokens   int
	// TimeoutPerCall bounds each individual model call.
	TimeoutPerCall time.Duration
	// MaxRetries is the number of re-analysis rounds the quality gate may
	// request after the first rejection.
	MaxRetries int
	// MaxConcurrentLookups bounds parallel sub-question lookups.
	MaxConcurrentLookups int
	// FindingsTokenBudget bounds the compiled findings fed to the analyst;
	// <= 0 disables truncation.
	FindingsTokenBudget int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Model:                "llama-3.3-70b-versatile",
		Temperature:          0.3,
		MaxTokens:            2048,
		TimeoutPerCall:       60 * time.Second,
		MaxRetries:           2,
		MaxConcurrentLookups: 3,
		FindingsTokenBudget:  6000,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.TimeoutPerCall <= 0 {
		c.TimeoutPerCall = d.TimeoutPerCall
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxConcurrentLookups <= 0 {
		c.MaxConcurrentLookups = d.MaxConcurrentLookups
	}
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	sink    workflow.EventSink
	tool    SearchTool
	prompts *PromptSet
}

// WithLogger sets the logger for all stages. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEventSink receives node-level progress events for the run.
func WithEventSink(s workflow.EventSink) Option {
	return func(o *options) { o.sink = s }
}

// WithSearchTool replaces the default generation-backed lookup.
func WithSearchTool(t SearchTool) Option {
	return func(o *options) { o.tool = t }
}

// WithPrompts overrides the built-in prompt templates.
func WithPrompts(p *PromptSet) Option {
	return func(o *options) { o.prompts = p }
}

// Result 是一次运行的产物。成功时携带最终报告;失败时 Report 为空,
// 但 State 与 History 仍然可用,调用方可以据此定位失败发生在哪个阶段。
type Result struct {
	Report  string
	State   State
	History *workflow.History
}

// Pipeline 把五个阶段装配成一张带质量闸门回边的有向图。
type Pipeline struct {
	runner *workflow.Runner[State]
	logger *zap.Logger
}

// New assembles the research pipeline on top of the given provider.
func New(provider llm.Provider, cfg Config, opts ...Option) (*Pipeline, error) {
	if provider == nil {
		return nil, errors.New("research: provider is required")
	}
	cfg.applyDefaults()

	o := options{logger: zap.NewNop(), prompts: DefaultPrompts()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prompts == nil {
		o.prompts = DefaultPrompts()
	}
	if o.tool == nil {
		o.tool = NewLLMSearchTool(provider, cfg, o.prompts)
	}

	gen := newGenerator(provider, cfg)
	planner := NewPlanner(gen, o.prompts, o.logger)
	researcher := NewResearcher(o.tool, cfg.MaxConcurrentLookups, o.logger)
	analyst := NewAnalyst(gen, o.prompts, cfg.FindingsTokenBudget, o.logger)
	critic := NewCritic(gen, o.prompts, cfg.MaxRetries, o.logger)
	synthesizer := NewSynthesizer(gen, o.prompts, o.logger)

	// 回边只有一条：validating -> analyzing。访问上限来自重试预算,
	// 即使路由出错也不可能无界循环。
	g := workflow.NewGraph[State]("research").
		AddNode(NodePlanning, planner.Run).
		AddNode(NodeResearching, researcher.Run).
		AddNode(NodeAnalyzing, analyst.Run).
		AddNode(NodeValidating, critic.Run).
		AddNode(NodeSynthesizing, synthesizer.Run).
		SetEntryPoint(NodePlanning).
		AddEdge(NodePlanning, NodeResearching).
		AddEdge(NodeResearching, NodeAnalyzing).
		AddEdge(NodeAnalyzing, NodeValidating).
		AddConditionalEdge(NodeValidating, routeAfterValidation).
		AddEdge(NodeSynthesizing, workflow.End).
		WithMaxVisits(NodeAnalyzing, cfg.MaxRetries+1).
		WithMaxVisits(NodeValidating, cfg.MaxRetries+1)

	ropts := []workflow.RunnerOption{workflow.WithLogger(o.logger)}
	if o.sink != nil {
		ropts = append(ropts, workflow.WithEventSink(o.sink))
	}
	runner, err := g.Compile(ropts...)
	if err != nil {
		return nil, fmt.Errorf("research: compile pipeline: %w", err)
	}
	return &Pipeline{runner: runner, logger: o.logger}, nil
}

// routeAfterValidation reads the status the critic left behind.
func routeAfterValidation(_ context.Context, s State) (workflow.State, error) {
	switch s.Status {
	case StatusSynthesizing:
		return NodeSynthesizing, nil
	case StatusAnalyzing:
		return NodeAnalyzing, nil
	default:
		return "", fmt.Errorf("unexpected status %q after validation", s.Status)
	}
}

// Run executes one research query end to end. Cancellation surfaces as
// ErrCancelled; stage failures surface as the stage's typed error. Even on
// failure the returned Result is non-nil and carries the last state snapshot
// plus the transition history up to the failing stage. Only the empty-query
// guard returns a nil Result, since no run ever started.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	final, history, err := p.runner.Execute(ctx, NewState(query))
	if err != nil {
		res := &Result{State: final, History: history}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return res, err
	}

	p.logger.Info("research run completed",
		zap.String("run_id", history.RunID),
		zap.Int("sub_questions", len(final.SubQuestions)),
		zap.Int("retries", final.RetryCount),
	)
	return &Result{Report: final.Report, State: final, History: history}, nil
}
