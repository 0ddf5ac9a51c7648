package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	// Window 配置
	viper.SetDefault("window.max_window", 20)
	viper.SetDefault("window.minimum_batch", 5)
	viper.SetDefault("window.summarize_timeout", 60*time.Second)
	viper.SetDefault("window.separator", "\n")
	viper.SetDefault("window.placeholder", "")

	// Summarizer 配置
	viper.SetDefault("summarizer.kind", "llm")
	viper.SetDefault("summarizer.local", "ollama")
	viper.SetDefault("summarizer.remote", "openai")
	viper.SetDefault("summarizer.max_tokens", 512)
	viper.SetDefault("summarizer.temperature", 0.2)
	viper.SetDefault("summarizer.chunk_max_tokens", 6000)
	viper.SetDefault("summarizer.retries", 1)
	viper.SetDefault("summarizer.retry_backoff", "500ms")

	// Ollama 配置
	viper.SetDefault("ollama.endpoint", "http://localhost:11434")
	viper.SetDefault("ollama.model", "llama3.2")
	viper.SetDefault("ollama.timeout", 5*time.Minute)
	viper.SetDefault("ollama.keep_alive", "5m")

	// OpenAI 配置
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("openai.timeout", 120*time.Second)
	viper.SetDefault("openai.max_retries", 2)

	// Anthropic 配置
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	viper.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	viper.SetDefault("anthropic.timeout", 120*time.Second)
	viper.SetDefault("anthropic.max_retries", 2)

	// Log 配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	// Storage 配置
	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.path", "~/.convwin/summaries.db")

	// Gateway 配置
	viper.SetDefault("gateway.port", 8080)
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.shutdown_timeout", 10*time.Second)
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 120)
	viper.SetDefault("gateway.rate_limit.burst", 20)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", 5*time.Minute)
}
