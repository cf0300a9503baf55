// Package events publishes shopping events and delivers host events such as
// family.updated to subscribers.
package events

import (
	"context"
	"time"
)

const (
	ListCreated   = "shopping.list.created"
	ListUpdated   = "shopping.list.updated"
	ListDeleted   = "shopping.list.deleted"
	ItemCreated   = "shopping.item.created"
	ItemUpdated   = "shopping.item.updated"
	ItemPurchased = "shopping.item.purchased"
	ItemDeleted   = "shopping.item.deleted"

	FamilyUpdated = "family.updated"
)

type Event struct {
	Type      string    `json:"type"`
	FamilyID  string    `json:"familyId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps an event with the current time.
func New(eventType, familyID string, data any) Event {
	return Event{Type: eventType, FamilyID: familyID, Data: data, Timestamp: time.Now().UTC()}
}

type Handler func(ctx context.Context, e Event)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus publishes events and runs subscriptions. Subscribe blocks until ctx is
// cancelled or the subscription fails.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, eventType string, h Handler) error
	Close() error
}
