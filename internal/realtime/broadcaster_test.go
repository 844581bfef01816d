package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewBroadcaster(client)
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := setupBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Subscribe(ctx, "it-1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, Event{ItineraryID: "it-1", Kind: "activity.moved", ActorID: "user-1"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Kind != "activity.moved" || event.ItineraryID != "it-1" {
			t.Errorf("unexpected event: %+v", event)
		}
		if event.At.IsZero() {
			t.Error("expected publish to stamp the event time")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeIsScopedToItinerary(t *testing.T) {
	b := setupBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := b.Subscribe(ctx, "it-1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := b.Publish(ctx, Event{ItineraryID: "it-2", Kind: "comment.added"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := b.Publish(ctx, Event{ItineraryID: "it-1", Kind: "day.reordered"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-events:
		if event.ItineraryID != "it-1" || event.Kind != "day.reordered" {
			t.Errorf("received event for wrong itinerary: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	b := setupBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := b.Subscribe(ctx, "it-1")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}
