// Package ollama implements the Provider interface for a local Ollama server.
package ollama

import "time"

// Default configuration values.
const (
	DefaultEndpoint  = "http://localhost:11434"
	DefaultModel     = "llama3.2"
	DefaultTimeout   = 5 * time.Minute
	DefaultKeepAlive = "5m"
)

// Config holds Ollama provider configuration.
type Config struct {
	Endpoint  string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model     string        `mapstructure:"model" yaml:"model"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	KeepAlive string        `mapstructure:"keep_alive" yaml:"keep_alive"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Model:     DefaultModel,
		Timeout:   DefaultTimeout,
		KeepAlive: DefaultKeepAlive,
	}
}

// ollamaRequest represents an Ollama chat request.
type ollamaRequest struct {
	Model     string          `json:"model"`
	Messages  []ollamaMessage `json:"messages"`
	Stream    bool            `json:"stream"`
	Options   *ollamaOptions  `json:"options,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaResponse represents a non-streaming Ollama chat response.
type ollamaResponse struct {
	Model      string        `json:"model"`
	CreatedAt  string        `json:"created_at"`
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason,omitempty"`

	// Only present when done=true
	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
}

// ollamaModelsResponse represents the response from /api/tags.
type ollamaModelsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

type ollamaModelInfo struct {
	Name       string `json:"name"`
	ModifiedAt string `json:"modified_at"`
	Size       int64  `json:"size"`
	Digest     string `json:"digest"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
