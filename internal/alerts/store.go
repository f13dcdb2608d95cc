package alerts

import (
	"context"
	"time"
)

// Store persists alerts. FindBy queries return candidates for merging;
// callers must hold the engine's per-user lock while merging.
type Store interface {
	// Create inserts a new alert and fills in its id.
	Create(ctx context.Context, a *Alert) error

	// Update persists a merged alert.
	Update(ctx context.Context, a *Alert) error

	// FindByItemHash returns the owner's alerts with the item hash and
	// last_event_at >= since.
	FindByItemHash(ctx context.Context, userID, itemHash string, since time.Time) ([]*Alert, error)

	// FindByBundleHash returns the owner's alerts with the bundle hash and
	// last_event_at >= since.
	FindByBundleHash(ctx context.Context, userID, bundleHash string, since time.Time) ([]*Alert, error)

	// ListForUser returns the owner's alerts newest-first. newerThan keeps
	// only alerts whose last activity is after it; the zero time keeps all.
	// The cutoff applies before limit and offset.
	ListForUser(ctx context.Context, userID string, newerThan time.Time, limit, offset int) ([]*Alert, error)

	// MarkSeen sets the seen flag of one alert.
	// Returns errors.ErrNotFound when the owner has no such alert.
	MarkSeen(ctx context.Context, userID, alertID string) error

	// MarkSeenBefore sets the seen flag on all of the owner's alerts with
	// last_event_at <= t and returns the number of updated rows.
	MarkSeenBefore(ctx context.Context, userID string, t time.Time) (int64, error)
}
