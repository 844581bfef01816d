// Package realtime fans out itinerary change events over Redis pub/sub so
// every API instance can push updates to its connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event describes one itinerary change. Kind is a short verb such as
// "itinerary.updated", "day.reordered", "activity.moved" or "comment.added".
type Event struct {
	ItineraryID string    `json:"itinerary_id"`
	Kind        string    `json:"kind"`
	ActorID     string    `json:"actor_id,omitempty"`
	At          time.Time `json:"at"`
}

// Broadcaster publishes and subscribes itinerary events on Redis channels.
type Broadcaster struct {
	client *redis.Client
	prefix string
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{
		client: client,
		prefix: "tripboard:events:",
	}
}

func (b *Broadcaster) channel(itineraryID string) string {
	return b.prefix + itineraryID
}

// Publish sends the event to every subscriber of the itinerary's channel.
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.ItineraryID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events for one itinerary until the context is cancelled.
// Malformed payloads are logged and skipped.
func (b *Broadcaster) Subscribe(ctx context.Context, itineraryID string) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, b.channel(itineraryID))
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", itineraryID, err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					log.Printf("realtime: drop malformed event on %s: %v", message.Channel, err)
					continue
				}
				events <- event
			}
		}
	}()
	return events, nil
}
