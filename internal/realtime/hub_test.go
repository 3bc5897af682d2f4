package realtime

import (
	"context"
	"log/slog"
	"testing"
)

func TestHubBroadcastReachesProjectSubscribers(t *testing.T) {
	hub := NewHub(slog.Default())

	subA := hub.Subscribe("p1")
	defer subA.Close()
	subB := hub.Subscribe("p1")
	defer subB.Close()
	other := hub.Subscribe("p2")
	defer other.Close()

	hub.Broadcast(context.Background(), Event{ProjectID: "p1", Kind: EventVectorized})

	for _, sub := range []*Subscription{subA, subB} {
		select {
		case event := <-sub.C:
			if event.Kind != EventVectorized {
				t.Errorf("kind = %s, want %s", event.Kind, EventVectorized)
			}
		default:
			t.Fatal("subscriber missed the event")
		}
	}

	select {
	case event := <-other.C:
		t.Fatalf("cross-project leak: %+v", event)
	default:
	}
}

func TestHubCloseStopsDelivery(t *testing.T) {
	hub := NewHub(slog.Default())

	sub := hub.Subscribe("p1")
	sub.Close()
	sub.Close() // safe to call twice

	if _, open := <-sub.C; open {
		t.Error("channel still open after Close")
	}

	// Must not panic on a closed subscription.
	hub.Broadcast(context.Background(), Event{ProjectID: "p1", Kind: EventErrored})
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(slog.Default())

	sub := hub.Subscribe("p1")
	defer sub.Close()

	// Fill the buffer and keep going; extra events must be dropped, not
	// block the broadcaster.
	for i := 0; i < cap(sub.C)+5; i++ {
		hub.Broadcast(context.Background(), Event{ProjectID: "p1", Kind: EventGenerated})
	}

	if got := len(sub.C); got != cap(sub.C) {
		t.Errorf("buffered = %d, want %d", got, cap(sub.C))
	}
}
