package summarizer

import (
	"context"
	"fmt"

	"convwin/internal/conversation"
	"convwin/internal/window"
)

// Static summarizes without a model: one low-priority observation per role
// present in the batch. Useful offline and as a fallback.
type Static struct{}

var _ window.Summarizer = Static{}

// SummarizeBatch implements window.Summarizer.
func (Static) SummarizeBatch(ctx context.Context, state *conversation.ThreadState, batch []conversation.Message) ([]conversation.Observation, error) {
	counts := conversation.CountRoles(batch)
	var out []conversation.Observation
	for _, role := range conversation.Roles {
		n := counts[role]
		if n == 0 {
			continue
		}
		noun := "message"
		if n > 1 {
			noun = "messages"
		}
		out = append(out, conversation.Observation{
			Priority: PriorityLow,
			Content:  fmt.Sprintf("%d %s %s compressed", n, role, noun),
		})
	}
	return out, nil
}
