package ollama

import (
	"convwin/internal/provider"
	"convwin/pkg/logger"
)

var (
	_ provider.Provider = (*OllamaProvider)(nil)
	_ provider.Pinger   = (*OllamaProvider)(nil)
)

// Register builds an Ollama provider from cfg and adds it to the global registry.
func Register(cfg Config) *OllamaProvider {
	p := NewOllamaProvider(cfg)
	provider.Register(p)

	logger.Debug().
		Str("endpoint", p.endpoint).
		Str("model", p.model).
		Msg("Ollama provider registered")
	return p
}
