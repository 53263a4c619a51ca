// Package events publishes domain events for downstream consumers
// (analytics, the notification worker). Publishing is always best-effort.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeProfileCreated  = "profile.created"
	TypeDayCompleted    = "day.completed"
	TypeAccountMigrated = "account.migrated"
	TypeAccountDeleted  = "account.deleted"
	TypePrayerCreated   = "prayer.created"
	TypeDonationStarted = "donation.initiated"
)

// Event is the JSON envelope written to the bus.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// New stamps an event with an id and the current time.
func New(eventType, userID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
