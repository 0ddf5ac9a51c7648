package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"convwin/internal/config"
	"convwin/internal/provider"
	"convwin/internal/provider/anthropic"
	"convwin/internal/provider/ollama"
	"convwin/internal/provider/openai"
	"convwin/internal/summarizer"
	"convwin/internal/window"
)

// Summarizer kinds.
const (
	SummarizerLLM    = "llm"
	SummarizerStatic = "static"
)

// windowConfig 将配置文件中的 window 段转换为管理器配置
func windowConfig(cfg *config.Config) window.Config {
	return window.Config{
		MaxWindow:        cfg.Window.MaxWindow,
		MinimumBatch:     cfg.Window.MinimumBatch,
		SummarizeTimeout: cfg.Window.SummarizeTimeout,
		Separator:        cfg.Window.Separator,
		Placeholder:      cfg.Window.Placeholder,
	}.Normalize()
}

func summarizerConfig(cfg *config.Config) summarizer.Config {
	return summarizer.Config{
		Local:          cfg.Summarizer.Local,
		Remote:         cfg.Summarizer.Remote,
		MaxTokens:      cfg.Summarizer.MaxTokens,
		Temperature:    cfg.Summarizer.Temperature,
		ChunkMaxTokens: cfg.Summarizer.ChunkMaxTokens,
		Retries:        cfg.Summarizer.Retries,
		RetryBackoff:   cfg.Summarizer.RetryBackoff,
	}
}

// registerProviders 根据配置注册可用的 Provider，返回注册的名称
func registerProviders(cfg *config.Config) []string {
	if cfg.Ollama.Endpoint != "" {
		ollama.Register(ollama.Config{
			Endpoint:  cfg.Ollama.Endpoint,
			Model:     cfg.Ollama.Model,
			Timeout:   cfg.Ollama.Timeout,
			KeepAlive: cfg.Ollama.KeepAlive,
		})
	}

	// 没有 API Key 时只有自定义 base_url（兼容服务）才注册
	if cfg.OpenAI.APIKey != "" || (cfg.OpenAI.BaseURL != "" && cfg.OpenAI.BaseURL != openai.DefaultBaseURL) {
		openai.Register(openai.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			Timeout:    cfg.OpenAI.Timeout,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
	}

	if cfg.Anthropic.APIKey != "" {
		anthropic.Register(anthropic.Config{
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			Model:      cfg.Anthropic.Model,
			Timeout:    cfg.Anthropic.Timeout,
			MaxRetries: cfg.Anthropic.MaxRetries,
		})
	}

	return provider.List()
}

// buildSummarizer 创建摘要器。llm 模式下没有任何 Provider 时退回 static。
func buildSummarizer(kind string, cfg *config.Config, log *zerolog.Logger) (window.Summarizer, error) {
	switch kind {
	case SummarizerStatic:
		return summarizer.Static{}, nil
	case SummarizerLLM, "":
		names := registerProviders(cfg)
		if len(names) == 0 {
			log.Warn().Msg("No summarizer provider configured, using static summarizer")
			return summarizer.Static{}, nil
		}
		sc := summarizerConfig(cfg)
		if _, ok := provider.Get(sc.Remote); !ok {
			log.Warn().Str("remote", sc.Remote).Strs("registered", names).
				Msg("Remote summarizer provider not registered, remote threads will get placeholders")
		}
		return summarizer.NewLLM(sc, nil), nil
	default:
		return nil, fmt.Errorf("unknown summarizer %q (want %s or %s)", kind, SummarizerLLM, SummarizerStatic)
	}
}
