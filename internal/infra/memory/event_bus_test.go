package memory

import (
	"context"
	"testing"

	"converseiq-service/internal/domain"
)

func TestEventBusDeliversPerSession(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()

	ch, cancel, err := bus.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	_ = bus.Publish(ctx, domain.Event{ID: "e0", SessionID: "other"})
	_ = bus.Publish(ctx, domain.Event{ID: "e1", SessionID: "s1", Type: domain.EventQuestionAsked})

	got := <-ch
	if got.ID != "e1" {
		t.Fatalf("expected e1, got %+v", got)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestEventBusDropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()
	ch, cancel, _ := bus.Subscribe(ctx, "s1")
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = bus.Publish(ctx, domain.Event{ID: string(rune('a' + i)), SessionID: "s1"})
	}

	var last domain.Event
	for len(ch) > 0 {
		last = <-ch
	}
	if last.ID != string(rune('a'+19)) {
		t.Fatalf("expected newest event retained, got %q", last.ID)
	}
}

func TestEventBusCancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus()
	ch, cancel, _ := bus.Subscribe(ctx, "s1")

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if bus.SubscriberCount("s1") != 0 {
		t.Fatalf("expected no subscribers")
	}
}
