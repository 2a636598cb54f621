package memory

import (
	"context"
	"sync"

	"converseiq-service/internal/domain"
)

// EventBus fans committed conversation events out to in-process subscribers.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]map[chan domain.Event]struct{})}
}

// Publish delivers event to every subscriber of its session without blocking.
func (b *EventBus) Publish(_ context.Context, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			// slow subscriber: drop the oldest queued event to make room
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribe returns a channel of events for sessionID.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *EventBus) Subscribe(_ context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, 16)

	b.mu.Lock()
	if b.subscribers[sessionID] == nil {
		b.subscribers[sessionID] = make(map[chan domain.Event]struct{})
	}
	b.subscribers[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[sessionID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
	return ch, cancel, nil
}

// SubscriberCount reports the live subscriptions for sessionID.
func (b *EventBus) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}
