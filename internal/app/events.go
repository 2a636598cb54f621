package app

import (
	"context"
	"time"

	"converseiq-service/internal/domain"
)

// EventRecorder appends audit events within a transaction and keeps them
// so they can be published once the transaction commits.
type EventRecorder struct {
	store    EventStore
	newID    func() string
	now      func() time.Time
	recorded []domain.Event
}

// NewEventRecorder binds a recorder to the given event store.
func NewEventRecorder(store EventStore, newID func() string, now func() time.Time) *EventRecorder {
	return &EventRecorder{store: store, newID: newID, now: now}
}

// Record appends one event for sessionID.
func (r *EventRecorder) Record(ctx context.Context, sessionID string, eventType domain.EventType, metadata map[string]any) (domain.Event, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	event := domain.Event{
		ID:        r.newID(),
		SessionID: sessionID,
		Type:      eventType,
		Metadata:  metadata,
		CreatedAt: r.now(),
	}
	if err := r.store.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	r.recorded = append(r.recorded, event)
	return event, nil
}

// Recorded returns the events appended so far, oldest first.
func (r *EventRecorder) Recorded() []domain.Event {
	return r.recorded
}
