package domain

import (
	"context"
	"time"
)

// NotificationEvent is the durable record of one dispatched signal with a
// non-empty audience. Digest runs re-derive their content from these rows;
// they are append-only until retention cleanup removes them.
type NotificationEvent struct {
	ID       string
	PortalID string

	// ActorID is the user whose action caused the event.
	ActorID string

	// Polymorphic target reference.
	ContentType string
	ObjectID    string

	GroupID string
	TypeID  string

	// Audience is the ordered, deduplicated set of candidate recipient ids.
	Audience []string

	CreatedAt time.Time
}

// InAudience reports whether the user is a candidate recipient.
func (e *NotificationEvent) InAudience(userID string) bool {
	for _, id := range e.Audience {
		if id == userID {
			return true
		}
	}
	return false
}

// EventStore persists and queries notification events.
type EventStore interface {
	// CreateEvent appends one event row.
	CreateEvent(ctx context.Context, ev *NotificationEvent) error

	// EventsInWindow returns the portal's events with
	// start <= created_at < end, ordered by creation.
	EventsInWindow(ctx context.Context, portalID string, start, end time.Time) ([]*NotificationEvent, error)

	// DeleteEventsBefore removes events with created_at < cutoff and
	// returns the number of deleted rows. Idempotent.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
