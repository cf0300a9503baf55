package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisBus carries events as JSON over redis pub/sub. Each event type is its
// own channel under prefix, e.g. "familymanager:shopping.item.created".
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisBus(addr, prefix string, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		logger: logger,
	}
}

// Ping verifies the broker is reachable.
func (b *RedisBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

func (b *RedisBus) Channel(eventType string) string {
	if b.prefix == "" {
		return eventType
	}
	return b.prefix + ":" + eventType
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	if err := b.client.Publish(ctx, b.Channel(e.Type), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", e.Type, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, eventType string, h Handler) error {
	sub := b.client.Subscribe(ctx, b.Channel(eventType))
	defer func() {
		if err := sub.Close(); err != nil {
			b.logger.Error("failed to close subscription", "channel", b.Channel(eventType), "error", err)
		}
	}()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", eventType, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := decode(msg.Payload)
			if err != nil {
				b.logger.Warn("dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			h(ctx, e)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func decode(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return e, nil
}
