// Package events publishes user lifecycle events for other services.
//
// Publishing is best-effort: a broker outage never fails a user request.
// Callers log the error from Publish and move on.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/rs/xid"
)

// Type names what happened to a user.
type Type string

const (
	UserCreated Type = "user.created"
	UserUpdated Type = "user.updated"
	UserDeleted Type = "user.deleted"
	// UserLinked: a local account gained a Google identity.
	UserLinked Type = "user.linked"
)

// Event is the message body, serialized as JSON.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     int64     `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps an event with a fresh id and the current time.
//
// xid ids are 20 characters, URL-safe and sort by creation time, which
// keeps consumer logs in order.
func New(t Type, userID int64) Event {
	return Event{
		ID:         xid.New().String(),
		Type:       t,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop drops every event. Used when AMQP_URL is empty.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Emit builds and publishes an event, logging instead of returning a
// failure.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, t Type, userID int64) {
	e := New(t, userID)
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("publishing event failed",
			slog.String("event_id", e.ID),
			slog.String("type", string(t)),
			slog.Int64("user_id", userID),
			slog.Any("error", err),
		)
	}
}
