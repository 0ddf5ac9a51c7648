package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ThreadMetadata carries per-thread data that travels with the transcript.
type ThreadMetadata struct {
	ThreadID string `json:"threadId"`
	LLMLocal bool   `json:"llmLocal"`
	LLMModel string `json:"llmModel,omitempty"`

	// ConversationSummaries is append-only. Nothing in this module truncates it.
	ConversationSummaries []SummaryRecord `json:"conversationSummaries"`
}

// ThreadState is the unit of work handed to the window manager.
// The caller owns it; at most one goroutine may mutate a given state.
type ThreadState struct {
	Messages []Message      `json:"messages"`
	Metadata ThreadMetadata `json:"metadata"`
}

// Validate fails fast on contract violations by the embedding application.
func (s *ThreadState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	for i, msg := range s.Messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// DecodeState reads one JSON thread state from r. A missing or null
// "messages" field is rejected with ErrMissingMessages; an empty array is
// a valid empty window.
func DecodeState(r io.Reader) (*ThreadState, error) {
	var state ThreadState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, err
	}
	if state.Messages == nil {
		return nil, ErrMissingMessages
	}
	return &state, nil
}

// Observation is a compact, tagged distillation of evicted messages.
type Observation struct {
	Priority string `json:"priority"`
	Content  string `json:"content"`
}

// String renders the observation as a single line.
func (o Observation) String() string {
	if o.Priority == "" {
		return o.Content
	}
	return o.Priority + " " + o.Content
}

// SummaryRecord is the durable log entry written once per summarization cycle.
type SummaryRecord struct {
	ID            string        `json:"id"`
	ThreadID      string        `json:"threadId"`
	Sequence      int           `json:"sequence"`
	Content       string        `json:"content"`
	Observations  []Observation `json:"observations"`
	Placeholder   bool          `json:"placeholder"`
	Degraded      bool          `json:"degraded"`
	Error         string        `json:"error,omitempty"`
	EvictedCount  int           `json:"evictedCount"`
	ForceTrimmed  int           `json:"forceTrimmed"`
	EvictedRoles  map[Role]int  `json:"evictedRoles,omitempty"`
	EvictedDigest string        `json:"evictedDigest,omitempty"`
	WindowBefore  int           `json:"windowBefore"`
	WindowAfter   int           `json:"windowAfter"`
	CreatedAt     time.Time     `json:"createdAt"`
}
