// Package summarizer provides window.Summarizer implementations: an LLM-backed
// observation extractor and a deterministic model-free fallback.
package summarizer

import "errors"

// ErrNoProvider indicates that no LLM provider could be resolved for a thread.
var ErrNoProvider = errors.New("summarizer: no provider available")
