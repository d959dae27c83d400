// Package events publishes identity changes after they are committed.
package events

import (
	"context"
	"time"
)

// Type names an identity change.
type Type string

const (
	// ContactCreated: a fragment matched nothing and became a new primary.
	ContactCreated Type = "contact.created"
	// ContactLinked: a fragment added a new secondary to an existing identity.
	ContactLinked Type = "contact.linked"
	// ContactsMerged: previously separate identities were merged and their
	// younger primaries demoted.
	ContactsMerged Type = "contact.merged"
)

// Event describes one committed identity change.
type Event struct {
	Type             Type      `json:"type"`
	PrimaryContactID int64     `json:"primaryContactId"`
	ContactIDs       []int64   `json:"contactIds"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
