// =============================================================================
// 📦 ResearchFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		LLM:      DefaultLLMConfig(),
		Pipeline: DefaultPipelineConfig(),
		Cache:    DefaultCacheConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:          "groq",
		Model:             "llama-3.3-70b-versatile",
		Temperature:       0.3,
		MaxTokens:         2048,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 0,
		Burst:             1,
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxRetries:           2,
		MaxConcurrentLookups: 3,
		FindingsTokenBudget:  6000,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		LocalSize: 256,
		TTL:       time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: false,
	}
}
