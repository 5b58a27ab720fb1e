// =============================================================================
// ResearchFlow 主入口
// =============================================================================
// 调研管线入口点，包含单次执行、HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	researchflow run "Compare LangGraph and AutoGen"   # 执行单次调研
//	researchflow serve                                 # 启动服务
//	researchflow serve --config config.yaml            # 指定配置文件
//	researchflow version                               # 显示版本信息
//	researchflow health                                # 健康检查
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/providers/groq"
	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/workflow"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runOnce(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🔬 run 命令
// =============================================================================

func runOnce(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Overall run timeout")
	fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: researchflow run [options] <query>")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	provider, err := buildProvider(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to build provider", zap.Error(err))
	}

	// 阶段进度打到 stderr,报告独占 stdout
	sink := workflow.NewChannelSink(64)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for e := range sink.Events() {
			if e.Type == workflow.EventNodeEntered {
				fmt.Fprintf(os.Stderr, "... %s\n", e.Node)
			}
		}
	}()

	pipe, err := research.New(provider, pipelineConfig(cfg),
		research.WithLogger(logger),
		research.WithEventSink(sink),
	)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	res, err := pipe.Run(ctx, query)
	sink.Close()
	<-progressDone
	if err != nil {
		if res != nil && res.History != nil {
			logger.Error("Research run failed",
				zap.String("run_id", res.History.RunID),
				zap.Any("stages", res.History.Path()),
				zap.Error(err),
			)
		} else {
			logger.Error("Research run failed", zap.Error(err))
		}
		var exhausted *research.ValidationExhaustedError
		if errors.As(err, &exhausted) {
			fmt.Fprintf(os.Stderr, "quality gate rejected every analysis attempt (%d retries):\n", exhausted.Retries)
			for _, r := range exhausted.Rejections {
				fmt.Fprintf(os.Stderr, "  - %s\n", r)
			}
		}
		os.Exit(1)
	}

	fmt.Println(res.Report)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting ResearchFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	collector := metrics.NewCollector("researchflow", logger)

	provider, err := buildProvider(cfg, logger, collector)
	if err != nil {
		logger.Fatal("Failed to build provider", zap.Error(err))
	}

	server := NewServer(cfg, provider, collector, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()
	logger.Info("ResearchFlow stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ResearchFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ResearchFlow - Multi-stage research pipeline

Usage:
  researchflow <command> [options]

Commands:
  run       Execute one research query and print the report
  serve     Start the ResearchFlow HTTP server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'run':
  --config <path>    Path to configuration file (YAML)
  --timeout <dur>    Overall run timeout (default 15m)

Options for 'serve':
  --config <path>    Path to configuration file (YAML)

Examples:
  researchflow run "Compare LangGraph and AutoGen for production agents"
  researchflow serve --config /etc/researchflow/config.yaml
  researchflow health --addr http://localhost:8080
  researchflow version`)
}

// =============================================================================
// 🔧 初始化辅助
// =============================================================================

func loadConfig(path string) *config.Config {
	loader := config.NewLoader().
		WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildProvider 按配置组装 Provider 链: 原始客户端 → 限速 → 缓存 → 指标
func buildProvider(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (llm.Provider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM API key not configured (set RESEARCHFLOW_LLM_API_KEY)")
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "groq", "":
		provider = groq.New(groq.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: groq)", cfg.LLM.Provider)
	}

	provider = llm.WithRateLimit(provider, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)

	if cfg.Cache.Enabled {
		var rdb *redis.Client
		if cfg.Cache.RedisAddr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.RedisAddr,
				Password: cfg.Cache.RedisPassword,
				DB:       cfg.Cache.RedisDB,
			})
		}
		cache := llm.NewResponseCache(rdb, &llm.CacheConfig{
			LocalMaxSize: cfg.Cache.LocalSize,
			LocalTTL:     cfg.Cache.TTL,
			RedisTTL:     cfg.Cache.TTL,
			EnableLocal:  true,
			EnableRedis:  rdb != nil,
		}, logger)
		if collector != nil {
			cache.SetStats(collector.CacheStats("llm_response"))
		}
		provider = llm.WithCache(provider, cache)
	}

	if collector != nil {
		provider = metrics.InstrumentProvider(provider, collector)
	}
	return provider, nil
}

func pipelineConfig(cfg *config.Config) research.Config {
	return research.Config{
		Model:                cfg.LLM.Model,
		Temperature:          float32(cfg.LLM.Temperature),
		MaxTokens:            cfg.LLM.MaxTokens,
		TimeoutPerCall:       cfg.LLM.Timeout,
		MaxRetries:           cfg.Pipeline.MaxRetries,
		MaxConcurrentLookups: cfg.Pipeline.MaxConcurrentLookups,
		FindingsTokenBudget:  cfg.Pipeline.FindingsTokenBudget,
	}
}

// initLogger 按配置构建 zap logger
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
