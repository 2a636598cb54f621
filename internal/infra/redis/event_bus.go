package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"converseiq-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// EventBus relays conversation events through Redis pub/sub so that a
// websocket attached to any instance sees events committed by any other.
type EventBus struct {
	client *redis.Client
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel(event.SessionID), payload).Err()
}

// Subscribe returns a channel of events for sessionID. It returns once Redis
// has confirmed the subscription. The caller must invoke cancel.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("decode event on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func channel(sessionID string) string {
	return "converse:session:" + sessionID + ":events"
}
