package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"convwin/internal/conversation"
	"convwin/internal/provider"
	"convwin/internal/window"
	"convwin/pkg/logger"
)

const systemPrompt = `You compress conversation history into durable observations.
Each observation is one line starting with a priority marker:
🔴 critical facts, decisions, constraints and open tasks
🟡 useful context and preferences
🟢 minor details worth a trace
Write only the observation lines. If nothing is worth keeping, reply NONE.`

const batchPrompt = `Extract observations from the following conversation messages, which are about to leave the live context.
Focus on:
1. Key decisions or conclusions reached
2. Important facts, names and data mentioned
3. User preferences and constraints
4. Pending tasks or questions

Messages:
%s`

// LLM extracts observations by asking a chat model.
type LLM struct {
	config   Config
	resolver Resolver
	counter  *window.TokenCounter
}

var _ window.Summarizer = (*LLM)(nil)

// NewLLM creates an LLM summarizer. A nil resolver falls back to the global
// provider registry using cfg.Local and cfg.Remote.
func NewLLM(cfg Config, resolver Resolver) *LLM {
	cfg = cfg.normalize()
	if resolver == nil {
		resolver = RegistryResolver{Local: cfg.Local, Remote: cfg.Remote}
	}
	return &LLM{
		config:   cfg,
		resolver: resolver,
		counter:  window.NewTokenCounter(),
	}
}

// SummarizeBatch implements window.Summarizer.
func (s *LLM) SummarizeBatch(ctx context.Context, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	var meta conversation.ThreadMetadata
	if state != nil {
		meta = state.Metadata
	}
	p, err := s.resolver.Resolve(meta)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoProvider
	}

	log := logger.ForThread(meta.ThreadID)
	var observations []conversation.Observation
	for i, chunk := range s.chunk(batch) {
		req := provider.ChatRequest{
			Model:       meta.LLMModel,
			System:      systemPrompt,
			Messages:    []provider.Message{{Role: provider.RoleUser, Content: fmt.Sprintf(batchPrompt, formatMessages(chunk))}},
			MaxTokens:   s.config.MaxTokens,
			Temperature: s.config.Temperature,
			ThreadID:    meta.ThreadID,
		}

		resp, err := s.chat(ctx, p, req)
		if err != nil {
			return nil, fmt.Errorf("summarize chunk %d via %s: %w", i, p.Name(), err)
		}

		obs := ParseObservations(resp.Content)
		log.Debug().
			Str("provider", p.Name()).
			Int("chunk", i).
			Int("messages", len(chunk)).
			Int("observations", len(obs)).
			Msg("Batch chunk summarized")
		observations = append(observations, obs...)
	}
	return observations, nil
}

// chat calls the provider, retrying transient failures with exponential
// backoff. Cancelling ctx during a backoff wait returns ctx.Err().
func (s *LLM) chat(ctx context.Context, p provider.Provider, req provider.ChatRequest) (*provider.ChatResponse, error) {
	var lastErr error
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if attempt > 0 && backoff > 0 {
			logger.Debug().
				Str("provider", p.Name()).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying summarizer request")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff = min(backoff*2, MaxRetryBackoff)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// chunk splits the batch so that no single request exceeds ChunkMaxTokens.
// A message larger than the limit gets a chunk of its own.
func (s *LLM) chunk(batch []conversation.Message) [][]conversation.Message {
	var chunks [][]conversation.Message
	var current []conversation.Message
	currentTokens := 0

	for _, msg := range batch {
		msgTokens := s.counter.EstimateMessages([]conversation.Message{msg})
		if currentTokens+msgTokens > s.config.ChunkMaxTokens && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, msg)
		currentTokens += msgTokens
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func formatMessages(msgs []conversation.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "[%s]: %s\n", msg.Role, msg.Content)
	}
	return sb.String()
}
