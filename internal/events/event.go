// Package events publishes committed ledger mutations to a message broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a ledger event.
type Type string

const (
	TypeTransfer     Type = "transfer"
	TypeGrant        Type = "grant"
	TypeWithdraw     Type = "withdraw"
	TypeRandomReward Type = "random_reward"
)

// Event is the JSON document published for every committed command mutation.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ActorID    int64     `json:"actor_id"`
	UserIDs    []int64   `json:"user_ids"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New builds an event with a fresh id.
func New(typ Type, actorID int64, userIDs []int64, amount int64, reason string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ActorID:    actorID,
		UserIDs:    userIDs,
		Amount:     amount,
		Reason:     reason,
		OccurredAt: at.UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
