// Package window keeps a conversation thread's live message window bounded,
// compressing evicted messages into observations through a Summarizer.
package window

import (
	"errors"

	"convwin/internal/conversation"
)

// Window errors.
var (
	// ErrNilState indicates that no thread state was supplied.
	ErrNilState = conversation.ErrNilState

	// ErrInvalidRole indicates a message with an unknown role was found in the window.
	ErrInvalidRole = conversation.ErrInvalidRole

	// ErrNoSummarizer indicates that no summarizer is configured.
	// The manager treats it as an empty result rather than failing.
	ErrNoSummarizer = errors.New("window: summarizer not configured")

	// ErrSummarizerPanic indicates the summarizer panicked; the panic was recovered.
	ErrSummarizerPanic = errors.New("window: summarizer panicked")
)
