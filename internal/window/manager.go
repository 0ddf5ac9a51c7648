package window

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"convwin/internal/conversation"
	"convwin/pkg/logger"
)

const summaryHeader = "[Conversation summary]"

// Summarizer compresses a batch of evicted messages into observations.
// Implementations must not mutate state or batch. An empty result is valid.
type Summarizer interface {
	SummarizeBatch(ctx context.Context, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error)

// SummarizeBatch calls f.
func (f SummarizerFunc) SummarizeBatch(ctx context.Context, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error) {
	return f(ctx, state, batch)
}

// Journal mirrors summary records to durable storage.
type Journal interface {
	AppendSummary(ctx context.Context, rec *conversation.SummaryRecord) error
}

// Outcome describes what a single PerformSummarization call did.
type Outcome struct {
	Skipped      bool                        `json:"skipped"`
	BatchSize    int                         `json:"batch_size"`
	Evicted      int                         `json:"evicted"`
	ForceTrimmed int                         `json:"force_trimmed"`
	Observations int                         `json:"observations"`
	Degraded     bool                        `json:"degraded"`
	Before       int                         `json:"before"`
	After        int                         `json:"after"`
	TokensBefore int                         `json:"tokens_before"`
	TokensAfter  int                         `json:"tokens_after"`
	Record       *conversation.SummaryRecord `json:"record,omitempty"`

	// JournalErr is set when the cycle completed but the record could not be
	// journaled. The window and in-memory log are updated regardless.
	JournalErr   error  `json:"-"`
	JournalError string `json:"journal_error,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal mirrors every summary record to j.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithLogger sets the logger used for cycle reporting.
func WithLogger(l *zerolog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source for summary records.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager enforces the live window bound of conversation threads.
// One Manager may serve many threads concurrently, but each ThreadState
// must only be handed to one call at a time.
type Manager struct {
	mu         sync.RWMutex
	config     Config
	summarizer Summarizer
	journal    Journal
	logger     *zerolog.Logger
	now        func() time.Time
	counter    *TokenCounter
}

// New creates a new Manager.
func New(config Config, summarizer Summarizer, opts ...Option) *Manager {
	m := &Manager{
		config:     config.Normalize(),
		summarizer: summarizer,
		logger:     logger.Get(),
		now:        time.Now,
		counter:    NewTokenCounter(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig replaces the configuration. Calls already in flight keep their snapshot.
func (m *Manager) SetConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config.Normalize()
}

// PerformSummarization enforces len(state.Messages) <= MaxWindow.
//
// Below the bound the call is a no-op. Above it, the oldest messages are
// summarized into one synthesized entry placed at the head of the window and
// a record is appended to state.Metadata.ConversationSummaries. Summarizer
// failures never surface here; the only errors returned are contract
// violations (nil state, unknown roles).
func (m *Manager) PerformSummarization(ctx context.Context, state *conversation.ThreadState) (*Outcome, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	cfg := m.Config()
	total := len(state.Messages)
	if total <= cfg.MaxWindow {
		return &Outcome{Skipped: true, Before: total, After: total}, nil
	}

	log := m.logger.With().Str("thread_id", state.Metadata.ThreadID).Logger()

	order := rankForEviction(state.Messages)
	batchSize := cfg.BatchSize(total)
	drop := make(map[int]bool, batchSize)
	for _, idx := range order[:batchSize] {
		drop[idx] = true
	}
	batch := collect(state.Messages, drop)

	observations, sumErr := m.summarize(ctx, cfg, state, batch)
	if sumErr != nil {
		log.Warn().Err(sumErr).Int("batch", len(batch)).Msg("Summarizer failed, using placeholder")
	}

	rec := conversation.SummaryRecord{
		ID:           uuid.New().String(),
		ThreadID:     state.Metadata.ThreadID,
		Sequence:     nextSequence(state.Metadata.ConversationSummaries),
		Observations: observations,
		Placeholder:  len(observations) == 0,
		Degraded:     sumErr != nil,
		WindowBefore: total,
		CreatedAt:    m.now(),
	}
	if sumErr != nil {
		rec.Error = sumErr.Error()
	}
	rec.Content = renderSummary(observations, cfg)

	summary := conversation.Message{
		Role:    conversation.RoleAssistant,
		Content: rec.Content,
		Metadata: map[string]any{
			conversation.MetaConversationSummary: true,
			conversation.MetaSummaryID:           rec.ID,
			conversation.MetaEvictedCount:        len(batch),
		},
	}

	tokensBefore := m.counter.EstimateMessages(state.Messages)
	window, removed, forced := splice(state.Messages, summary, drop, order, cfg.MaxWindow)
	if forced > 0 {
		log.Debug().Int("force_trimmed", forced).Int("max_window", cfg.MaxWindow).Msg("Force-trimmed window")
	}
	state.Messages = window

	rec.EvictedCount = len(removed)
	rec.ForceTrimmed = forced
	rec.EvictedRoles = conversation.CountRoles(removed)
	rec.EvictedDigest = conversation.Digest(removed)
	rec.WindowAfter = len(window)

	// The journal may renumber rec when it already holds records for the
	// thread; the in-memory log takes whatever sequence it assigned.
	var journalErr error
	if m.journal != nil {
		if journalErr = m.journal.AppendSummary(ctx, &rec); journalErr != nil {
			log.Warn().Err(journalErr).Str("summary_id", rec.ID).Msg("Failed to journal summary record")
		}
	}
	state.Metadata.ConversationSummaries = append(state.Metadata.ConversationSummaries, rec)

	outcome := &Outcome{
		BatchSize:    batchSize,
		Evicted:      len(removed),
		ForceTrimmed: forced,
		Observations: len(observations),
		Degraded:     rec.Degraded,
		Before:       total,
		After:        len(window),
		TokensBefore: tokensBefore,
		TokensAfter:  m.counter.EstimateMessages(window),
		Record:       &rec,
		JournalErr:   journalErr,
	}
	if journalErr != nil {
		outcome.JournalError = journalErr.Error()
	}

	log.Info().
		Int("before", outcome.Before).
		Int("after", outcome.After).
		Int("evicted", outcome.Evicted).
		Int("observations", outcome.Observations).
		Bool("degraded", outcome.Degraded).
		Int("sequence", rec.Sequence).
		Msg("Conversation window summarized")

	return outcome, nil
}

// summarize runs the summarizer under the configured deadline. It returns
// once the deadline passes even if the summarizer ignores its context.
func (m *Manager) summarize(ctx context.Context, cfg Config, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error) {
	if m.summarizer == nil {
		return nil, ErrNoSummarizer
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.SummarizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SummarizeTimeout)
		defer cancel()
	}

	// The summarizer may outlive this call on timeout, so it only ever sees copies.
	snapshot := snapshotState(state)

	type result struct {
		obs []conversation.Observation
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrSummarizerPanic, r)}
			}
		}()
		obs, err := m.summarizer.SummarizeBatch(ctx, snapshot, batch)
		done <- result{obs: obs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return cleanObservations(res.obs), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("summarize batch: %w", ctx.Err())
	}
}

// rankForEviction returns message indices ordered by descending eviction
// priority. Ties keep the lower index first.
func rankForEviction(msgs []conversation.Message) []int {
	total := len(msgs)
	scores := make([]float64, total)
	order := make([]int, total)
	for i := range msgs {
		scores[i] = AgeScore(i, total, msgs[i])
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// splice rebuilds the window: the synthesized entry first, then every message
// not in drop, in original order. When the result would still exceed limit, the
// next entries of order are dropped too. drop is extended in place.
func splice(msgs []conversation.Message, summary conversation.Message, drop map[int]bool, order []int, limit int) (window, removed []conversation.Message, forced int) {
	size := 1 + len(msgs) - len(drop)
	for _, idx := range order {
		if size <= limit {
			break
		}
		if drop[idx] {
			continue
		}
		drop[idx] = true
		forced++
		size--
	}

	window = make([]conversation.Message, 0, size)
	window = append(window, summary)
	removed = make([]conversation.Message, 0, len(drop))
	for i, msg := range msgs {
		if drop[i] {
			removed = append(removed, msg)
			continue
		}
		window = append(window, msg)
	}
	return window, removed, forced
}

// collect copies the messages selected by drop, in original order.
func collect(msgs []conversation.Message, drop map[int]bool) []conversation.Message {
	batch := make([]conversation.Message, 0, len(drop))
	for i, msg := range msgs {
		if drop[i] {
			batch = append(batch, cloneMessage(msg))
		}
	}
	return batch
}

func cloneMessage(msg conversation.Message) conversation.Message {
	if msg.Metadata != nil {
		meta := make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			meta[k] = v
		}
		msg.Metadata = meta
	}
	return msg
}

func snapshotState(state *conversation.ThreadState) *conversation.ThreadState {
	snap := &conversation.ThreadState{
		Messages: make([]conversation.Message, len(state.Messages)),
		Metadata: state.Metadata,
	}
	for i, msg := range state.Messages {
		snap.Messages[i] = cloneMessage(msg)
	}
	snap.Metadata.ConversationSummaries = append([]conversation.SummaryRecord(nil), state.Metadata.ConversationSummaries...)
	return snap
}

// cleanObservations trims content and drops empty observations.
func cleanObservations(obs []conversation.Observation) []conversation.Observation {
	if len(obs) == 0 {
		return nil
	}
	out := make([]conversation.Observation, 0, len(obs))
	for _, o := range obs {
		o.Content = strings.TrimSpace(o.Content)
		o.Priority = strings.TrimSpace(o.Priority)
		if o.Content == "" {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// renderSummary builds the synthesized entry content.
func renderSummary(obs []conversation.Observation, cfg Config) string {
	if len(obs) == 0 {
		return cfg.Placeholder
	}
	lines := make([]string, 0, len(obs))
	for _, o := range obs {
		lines = append(lines, o.String())
	}
	return summaryHeader + "\n" + strings.Join(lines, cfg.Separator)
}

// nextSequence proposes the sequence following the last record.
func nextSequence(records []conversation.SummaryRecord) int {
	if len(records) == 0 {
		return 1
	}
	return records[len(records)-1].Sequence + 1
}
