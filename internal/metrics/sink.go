package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/workflow"
)

// =============================================================================
// 🔌 事件流与 Provider 的指标接入
// =============================================================================

// Sink 把工作流事件转成阶段指标。每个 (run, node) 在 entered 时记下
// 时刻,completed/failed 时观测耗时。回边会让同一节点在一次运行里
// 出现多次:耗时观测取最近一次 entered,重入次数单独累计,用来驱动
// 质量闸门的重试计数。
type Sink struct {
	collector *Collector
	retryNode workflow.State

	mu      sync.Mutex
	entered map[string]time.Time // runID + "/" + node
	visits  map[string]int
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithRetryNode 指定回边的目标节点:一次运行里该节点第二次及以后
// 的进入,各记一次重试。
func WithRetryNode(node workflow.State) SinkOption {
	return func(s *Sink) { s.retryNode = node }
}

// NewSink 创建事件指标接入器
func NewSink(collector *Collector, opts ...SinkOption) *Sink {
	s := &Sink{
		collector: collector,
		entered:   make(map[string]time.Time),
		visits:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit 实现 workflow.EventSink
func (s *Sink) Emit(e workflow.Event) {
	key := e.RunID + "/" + string(e.Node)

	switch e.Type {
	case workflow.EventNodeEntered:
		s.mu.Lock()
		s.entered[key] = e.Timestamp
		s.visits[key]++
		reentered := s.retryNode != "" && e.Node == s.retryNode && s.visits[key] > 1
		s.mu.Unlock()

		if reentered {
			s.collector.RecordRetry()
		}

	case workflow.EventNodeCompleted, workflow.EventNodeFailed:
		s.mu.Lock()
		start, ok := s.entered[key]
		delete(s.entered, key)
		s.mu.Unlock()

		status := "success"
		if e.Type == workflow.EventNodeFailed {
			status = "error"
		}
		var d time.Duration
		if ok {
			d = e.Timestamp.Sub(start)
		}
		s.collector.RecordStageExecution(string(e.Node), status, d)

	case workflow.EventRunCompleted:
		s.collector.RecordRun("completed")
		s.forget(e.RunID)

	case workflow.EventRunCancelled:
		s.collector.RecordRun("cancelled")
		s.forget(e.RunID)
	}
}

// forget 清掉一次运行遗留的记录,防止泄漏
func (s *Sink) forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := runID + "/"
	for k := range s.entered {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.entered, k)
		}
	}
	for k := range s.visits {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.visits, k)
		}
	}
}

// =============================================================================
// 💾 缓存指标适配
// =============================================================================

type cacheStatsAdapter struct {
	collector *Collector
	cacheType string
}

func (a cacheStatsAdapter) Hit()  { a.collector.RecordCacheHit(a.cacheType) }
func (a cacheStatsAdapter) Miss() { a.collector.RecordCacheMiss(a.cacheType) }

// CacheStats 返回一个 llm.CacheStats,把命中/未命中计入给定的
// cache_type 标签。
func (c *Collector) CacheStats(cacheType string) llm.CacheStats {
	return cacheStatsAdapter{collector: c, cacheType: cacheType}
}

// =============================================================================
// 🤖 Provider 指标包装
// =============================================================================

type instrumentedProvider struct {
	inner     llm.Provider
	collector *Collector
}

// InstrumentProvider 包装 Provider,记录每次补全的耗时、状态与 Token 用量。
// 缓存命中/未命中由缓存自身经 [Collector.CacheStats] 上报,这里不重复计数。
func InstrumentProvider(p llm.Provider, collector *Collector) llm.Provider {
	if collector == nil {
		return p
	}
	return &instrumentedProvider{inner: p, collector: collector}
}

func (ip *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := ip.inner.Completion(ctx, req)
	d := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}
	prompt, completion := 0, 0
	if resp != nil && resp.Usage != nil {
		prompt = resp.Usage.PromptTokens
		completion = resp.Usage.CompletionTokens
	}
	ip.collector.RecordLLMRequest(ip.inner.Name(), req.Model, status, d, prompt, completion)

	return resp, err
}

func (ip *instrumentedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return ip.inner.HealthCheck(ctx)
}

func (ip *instrumentedProvider) Name() string { return ip.inner.Name() }
