package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/internal/server"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ResearchFlow 的 HTTP 服务器
type Server struct {
	cfg       *config.Config
	provider  llm.Provider
	collector *metrics.Collector
	logger    *zap.Logger

	manager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, provider llm.Provider, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		provider:  provider,
		collector: collector,
		logger:    logger,
	}
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动 HTTP 服务器
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", s.handleResearch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.manager = server.NewManager(s.withRequestMetrics(mux), server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.manager.Start()
}

// WaitForShutdown 阻塞等待终止信号并优雅关闭
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()
}

// =============================================================================
// 🔬 /research
// =============================================================================

type researchRequest struct {
	Query string `json:"query"`
}

type researchResponse struct {
	RunID        string   `json:"run_id"`
	Report       string   `json:"report"`
	SubQuestions []string `json:"sub_questions"`
	Retries      int      `json:"retries"`
	Rejections   []string `json:"rejections,omitempty"`
}

type progressEvent struct {
	Node   string `json:"node"`
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// handleResearch 执行一次调研。Accept: text/event-stream 时以 SSE 推送
// 阶段进度,否则阻塞到完成后返回 JSON。
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, research.ErrEmptyQuery)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamResearch(w, r, req.Query)
		return
	}

	res, err := s.runResearch(r.Context(), req.Query, nil)
	if err != nil {
		s.writeResearchError(w, res, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(researchResponse{
		RunID:        res.History.RunID,
		Report:       res.Report,
		SubQuestions: res.State.SubQuestions,
		Retries:      res.State.RetryCount,
		Rejections:   res.State.Rejections,
	})
}

// streamResearch 以 SSE 推送进度事件,最后一条是报告或错误。
func (s *Server) streamResearch(w http.ResponseWriter, r *http.Request, query string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := workflow.NewChannelSink(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sink.Events() {
			payload, _ := json.Marshal(progressEvent{
				Node:   string(e.Node),
				Type:   string(e.Type),
				Detail: e.Detail,
			})
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}()

	res, err := s.runResearch(r.Context(), query, sink)
	sink.Close()
	<-done

	if err != nil {
		payload, _ := json.Marshal(researchErrorResponse(res, err))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, _ := json.Marshal(researchResponse{
		RunID:        res.History.RunID,
		Report:       res.Report,
		SubQuestions: res.State.SubQuestions,
		Retries:      res.State.RetryCount,
		Rejections:   res.State.Rejections,
	})
	fmt.Fprintf(w, "event: report\ndata: %s\n\n", payload)
	flusher.Flush()
}

// runResearch 为每次请求装配独立管线,事件流互不串扰。
func (s *Server) runResearch(ctx context.Context, query string, sink workflow.EventSink) (*research.Result, error) {
	opts := []research.Option{research.WithLogger(s.logger)}
	if s.collector != nil {
		// 回边只指向 analyzing,重入即质量闸门重试
		msink := metrics.NewSink(s.collector, metrics.WithRetryNode(research.NodeAnalyzing))
		if sink != nil {
			sink = fanOutSink{sink, msink}
		} else {
			sink = msink
		}
	}
	if sink != nil {
		opts = append(opts, research.WithEventSink(sink))
	}

	pipe, err := research.New(s.provider, pipelineConfig(s.cfg), opts...)
	if err != nil {
		return nil, err
	}
	return pipe.Run(ctx, query)
}

// fanOutSink 把一个事件同时投递给多个接收端
type fanOutSink []workflow.EventSink

func (f fanOutSink) Emit(e workflow.Event) {
	for _, s := range f {
		s.Emit(e)
	}
}

// =============================================================================
// 🏥 /healthz
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := s.provider.HealthCheck(ctx)
	healthy := err == nil && status != nil && status.Healthy

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"healthy":  healthy,
		"provider": s.provider.Name(),
		"version":  Version,
	})
}

// =============================================================================
// 🔧 错误与中间件
// =============================================================================

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// researchErrorResponse 组装失败响应:除错误信息外,还带上失败前
// 走过的阶段轨迹,便于定位停在了哪一步。
func researchErrorResponse(res *research.Result, err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	if res == nil || res.History == nil {
		return body
	}
	stages := make([]string, 0, res.History.Len())
	for _, node := range res.History.Path() {
		stages = append(stages, string(node))
	}
	body["run_id"] = res.History.RunID
	body["stages"] = stages
	if len(res.State.Rejections) > 0 {
		body["rejections"] = res.State.Rejections
	}
	return body
}

// writeResearchError 按错误类型映射 HTTP 状态码
func (s *Server) writeResearchError(w http.ResponseWriter, res *research.Result, err error) {
	status := http.StatusInternalServerError

	var exhausted *research.ValidationExhaustedError
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, research.ErrCancelled):
		// 客户端断开,499 的惯用近似
		status = http.StatusRequestTimeout
	case errors.As(err, &exhausted):
		status = http.StatusUnprocessableEntity
	}

	s.logger.Warn("research request failed", zap.Int("status", status), zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(researchErrorResponse(res, err))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withRequestMetrics 记录每个请求的计数与耗时
func (s *Server) withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if s.collector != nil {
			s.collector.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
		}
	})
}
