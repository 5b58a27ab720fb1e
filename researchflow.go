// =============================================================================
// Package researchflow — One-Line Pipeline Construction
// =============================================================================
// Provides a convenience entry point for creating research pipelines with
// minimal boilerplate. Delegates to research.New internally.
//
// Usage:
//
//	import "github.com/BaSui01/researchflow"
//
//	p, err := researchflow.New(researchflow.WithGroq("llama-3.3-70b-versatile"))
//	p, err := researchflow.New(researchflow.WithProvider(myProvider))
//
//	res, err := p.Run(ctx, "Compare LangGraph and AutoGen for production agents")
//	fmt.Println(res.Report)
//
// =============================================================================
package researchflow

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/providers/groq"
	"github.com/BaSui01/researchflow/research"
)

// Option configures the pipeline created by New.
type Option func(*options)

type options struct {
	provider llm.Provider
	logger   *zap.Logger
	cfg      research.Config
	extra    []research.Option

	// Provider shortcut fields — used when provider is nil.
	providerName string
	apiKey       string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithGroq creates a Groq provider using the given model.
// API key is read from GROQ_API_KEY environment variable.
func WithGroq(model string) Option {
	return func(o *options) {
		o.providerName = "groq"
		o.cfg.Model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("GROQ_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithModel sets the model name. Overrides the model set by provider shortcuts.
func WithModel(model string) Option {
	return func(o *options) { o.cfg.Model = model }
}

// WithConfig replaces the full pipeline configuration.
func WithConfig(cfg research.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSearchTool replaces the default generation-backed lookup.
func WithSearchTool(t research.SearchTool) Option {
	return func(o *options) { o.extra = append(o.extra, research.WithSearchTool(t)) }
}

// New creates a research pipeline with minimal configuration.
// At minimum, a provider must be specified via [WithGroq] or [WithProvider].
func New(opts ...Option) (*research.Pipeline, error) {
	o := &options{cfg: research.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}

	// Resolve provider.
	p := o.provider
	if p == nil {
		if o.providerName == "" {
			return nil, fmt.Errorf("provider is required: use WithProvider or WithGroq")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required for %s: set the environment variable or use WithAPIKey", o.providerName)
		}
		p = groq.New(groq.Config{APIKey: o.apiKey, Model: o.cfg.Model}, o.logger)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	ropts := append([]research.Option{research.WithLogger(o.logger)}, o.extra...)
	return research.New(p, o.cfg, ropts...)
}
