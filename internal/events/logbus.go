package events

import (
	"context"
	"log/slog"
	"sync"
)

// LogBus logs every published event and dispatches it to in-process
// subscribers. It is used when no broker is configured.
type LogBus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
}

func NewLogBus(logger *slog.Logger) *LogBus {
	return &LogBus{logger: logger, handlers: make(map[string]map[int]Handler)}
}

func (b *LogBus) Publish(ctx context.Context, e Event) error {
	b.logger.Info("event", "type", e.Type, "family_id", e.FamilyID)

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type]))
	for _, h := range b.handlers[e.Type] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, e)
	}
	return nil
}

func (b *LogBus) Subscribe(ctx context.Context, eventType string, h Handler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[int]Handler)
	}
	b.handlers[eventType][id] = h
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers[eventType], id)
	b.mu.Unlock()
	return nil
}

func (b *LogBus) Close() error { return nil }
