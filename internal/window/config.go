package window

import "time"

// Default configuration values.
const (
	DefaultMaxWindow        = 20
	DefaultMinimumBatch     = 5
	DefaultSummarizeTimeout = 60 * time.Second
	DefaultSeparator        = "\n"
	DefaultPlaceholder      = "[Conversation summary] No distillable content was found in the earlier messages this cycle."
)

// Config holds configuration for the window manager.
type Config struct {
	// MaxWindow is the maximum number of messages kept in the live window.
	// Default: 20
	MaxWindow int `json:"max_window" mapstructure:"max_window" yaml:"max_window"`

	// MinimumBatch is the smallest eviction batch worth summarizing.
	// Default: 5
	MinimumBatch int `json:"minimum_batch" mapstructure:"minimum_batch" yaml:"minimum_batch"`

	// SummarizeTimeout bounds a single summarizer call. Zero disables the bound.
	// Default: 60s
	SummarizeTimeout time.Duration `json:"summarize_timeout" mapstructure:"summarize_timeout" yaml:"summarize_timeout"`

	// Separator joins observations in the synthesized summary entry.
	Separator string `json:"separator" mapstructure:"separator" yaml:"separator"`

	// Placeholder is the summary content used when no observations came back.
	Placeholder string `json:"placeholder" mapstructure:"placeholder" yaml:"placeholder"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxWindow:        DefaultMaxWindow,
		MinimumBatch:     DefaultMinimumBatch,
		SummarizeTimeout: DefaultSummarizeTimeout,
		Separator:        DefaultSeparator,
		Placeholder:      DefaultPlaceholder,
	}
}

// Normalize fills unset fields with defaults and clamps the bounds.
// A negative SummarizeTimeout is treated as "no bound".
func (c Config) Normalize() Config {
	if c.MaxWindow < 1 {
		c.MaxWindow = DefaultMaxWindow
	}
	if c.MinimumBatch < 1 {
		c.MinimumBatch = DefaultMinimumBatch
	}
	if c.SummarizeTimeout < 0 {
		c.SummarizeTimeout = 0
	}
	if c.Separator == "" {
		c.Separator = DefaultSeparator
	}
	if c.Placeholder == "" {
		c.Placeholder = DefaultPlaceholder
	}
	return c
}

// BatchSize returns how many messages must be evicted from a window of
// total messages. One slot is reserved for the synthesized summary entry.
func (c Config) BatchSize(total int) int {
	if total <= c.MaxWindow {
		return 0
	}
	size := total - c.MaxWindow + 1
	if size < c.MinimumBatch {
		size = c.MinimumBatch
	}
	if size > total {
		size = total
	}
	return size
}
