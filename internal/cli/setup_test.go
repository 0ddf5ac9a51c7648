package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convwin/internal/config"
	"convwin/internal/provider"
	"convwin/internal/summarizer"
	"convwin/internal/window"
	"convwin/pkg/logger"
)

func TestWindowConfig(t *testing.T) {
	cfg := &config.Config{Window: config.WindowConfig{
		MaxWindow:        12,
		MinimumBatch:     3,
		SummarizeTimeout: 5 * time.Second,
	}}

	got := windowConfig(cfg)
	assert.Equal(t, 12, got.MaxWindow)
	assert.Equal(t, 3, got.MinimumBatch)
	assert.Equal(t, 5*time.Second, got.SummarizeTimeout)
	assert.Equal(t, window.DefaultSeparator, got.Separator)
	assert.Equal(t, window.DefaultPlaceholder, got.Placeholder)
}

func TestRegisterProviders(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{
		{
			name: "nothing configured",
			cfg:  config.Config{},
			want: nil,
		},
		{
			name: "ollama only",
			cfg:  config.Config{Ollama: config.OllamaConfig{Endpoint: "http://localhost:11434"}},
			want: []string{"ollama"},
		},
		{
			name: "openai default url without key is skipped",
			cfg:  config.Config{OpenAI: config.OpenAIConfig{BaseURL: "https://api.openai.com/v1"}},
			want: nil,
		},
		{
			name: "openai compatible server without key",
			cfg:  config.Config{OpenAI: config.OpenAIConfig{BaseURL: "http://localhost:8000/v1"}},
			want: []string{"openai"},
		},
		{
			name: "all three",
			cfg: config.Config{
				Ollama:    config.OllamaConfig{Endpoint: "http://localhost:11434"},
				OpenAI:    config.OpenAIConfig{APIKey: "sk-test"},
				Anthropic: config.AnthropicConfig{APIKey: "sk-ant-test"},
			},
			want: []string{"anthropic", "ollama", "openai"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider.Reset()
			t.Cleanup(provider.Reset)

			got := registerProviders(&tt.cfg)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestBuildSummarizer(t *testing.T) {
	t.Cleanup(provider.Reset)

	provider.Reset()
	s, err := buildSummarizer(SummarizerStatic, &config.Config{}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, summarizer.Static{}, s)

	provider.Reset()
	s, err = buildSummarizer(SummarizerLLM, &config.Config{}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, summarizer.Static{}, s, "falls back without providers")

	provider.Reset()
	cfg := &config.Config{Ollama: config.OllamaConfig{Endpoint: "http://localhost:11434"}}
	s, err = buildSummarizer(SummarizerLLM, cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &summarizer.LLM{}, s)

	_, err = buildSummarizer("magic", cfg, logger.Nop())
	assert.Error(t, err)
}

func TestBackendChecks(t *testing.T) {
	t.Cleanup(provider.Reset)

	provider.Reset()
	registerProviders(&config.Config{
		Ollama: config.OllamaConfig{Endpoint: "http://localhost:11434"},
		OpenAI: config.OpenAIConfig{APIKey: "sk-test"},
	})

	checks := backendChecks(SummarizerLLM)
	assert.Len(t, checks, 1)
	assert.Contains(t, checks, "ollama")

	assert.Nil(t, backendChecks(SummarizerStatic))
}
