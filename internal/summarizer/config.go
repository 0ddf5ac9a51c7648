package summarizer

import "time"

// Default configuration values.
const (
	DefaultLocal          = "ollama"
	DefaultRemote         = "openai"
	DefaultMaxTokens      = 512
	DefaultTemperature    = 0.2
	DefaultChunkMaxTokens = 6000
	DefaultRetries        = 1
	DefaultRetryBackoff   = 500 * time.Millisecond

	// MaxRetryBackoff caps the doubling wait between attempts.
	MaxRetryBackoff = 8 * time.Second
)

// Config holds configuration for the LLM summarizer.
type Config struct {
	// Local is the provider used for threads with llmLocal=true.
	Local string `json:"local" mapstructure:"local" yaml:"local"`

	// Remote is the provider used for every other thread.
	Remote string `json:"remote" mapstructure:"remote" yaml:"remote"`

	// MaxTokens caps each model reply.
	MaxTokens int `json:"max_tokens" mapstructure:"max_tokens" yaml:"max_tokens"`

	Temperature float64 `json:"temperature" mapstructure:"temperature" yaml:"temperature"`

	// ChunkMaxTokens splits large batches into several model calls.
	ChunkMaxTokens int `json:"chunk_max_tokens" mapstructure:"chunk_max_tokens" yaml:"chunk_max_tokens"`

	// Retries is how many extra attempts a retryable provider error gets.
	Retries int `json:"retries" mapstructure:"retries" yaml:"retries"`

	// RetryBackoff is the wait before the first retry; it doubles per attempt.
	// Zero selects the default, a negative value retries immediately.
	RetryBackoff time.Duration `json:"retry_backoff" mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Local:          DefaultLocal,
		Remote:         DefaultRemote,
		MaxTokens:      DefaultMaxTokens,
		Temperature:    DefaultTemperature,
		ChunkMaxTokens: DefaultChunkMaxTokens,
		Retries:        DefaultRetries,
		RetryBackoff:   DefaultRetryBackoff,
	}
}

func (c Config) normalize() Config {
	if c.Local == "" {
		c.Local = DefaultLocal
	}
	if c.Remote == "" {
		c.Remote = DefaultRemote
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ChunkMaxTokens <= 0 {
		c.ChunkMaxTokens = DefaultChunkMaxTokens
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	switch {
	case c.RetryBackoff == 0:
		c.RetryBackoff = DefaultRetryBackoff
	case c.RetryBackoff < 0:
		c.RetryBackoff = 0
	}
	return c
}
