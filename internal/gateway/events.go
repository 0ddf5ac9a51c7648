package gateway

import (
	"context"

	"convwin/internal/conversation"
	"convwin/internal/gateway/websocket"
	"convwin/internal/window"
)

// EventJournal forwards summary records to another journal and then
// publishes them to the hub subscribers of the record's thread.
type EventJournal struct {
	next window.Journal
	hub  *websocket.Hub
}

// NewEventJournal wraps next, which may be nil when nothing is persisted.
func NewEventJournal(next window.Journal, hub *websocket.Hub) *EventJournal {
	return &EventJournal{next: next, hub: hub}
}

// AppendSummary implements window.Journal. Records that failed to persist
// are not published.
func (j *EventJournal) AppendSummary(ctx context.Context, rec *conversation.SummaryRecord) error {
	if j.next != nil {
		if err := j.next.AppendSummary(ctx, rec); err != nil {
			return err
		}
	}
	if j.hub != nil {
		j.hub.Publish(websocket.TypeSummary, rec.ThreadID, rec)
	}
	return nil
}
