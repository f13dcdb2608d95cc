package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// PGEventStore is the pgx-backed notification event store.
type PGEventStore struct {
	pool *pgxpool.Pool
}

func NewPGEventStore(pool *pgxpool.Pool) *PGEventStore {
	return &PGEventStore{pool: pool}
}

var _ domain.EventStore = (*PGEventStore)(nil)

func (s *PGEventStore) CreateEvent(ctx context.Context, ev *domain.NotificationEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_events
			(id, portal_id, actor_id, content_type, object_id, group_id, notification_type_id, audience, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.PortalID, ev.ActorID, ev.ContentType, ev.ObjectID, ev.GroupID, ev.TypeID, ev.Audience, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PGEventStore) EventsInWindow(ctx context.Context, portalID string, start, end time.Time) ([]*domain.NotificationEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, portal_id, actor_id, content_type, object_id, group_id, notification_type_id, audience, created_at
		 FROM notification_events
		 WHERE portal_id = $1 AND created_at >= $2 AND created_at < $3
		 ORDER BY created_at, id`,
		portalID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*domain.NotificationEvent
	for rows.Next() {
		var ev domain.NotificationEvent
		if err := rows.Scan(&ev.ID, &ev.PortalID, &ev.ActorID, &ev.ContentType, &ev.ObjectID, &ev.GroupID, &ev.TypeID, &ev.Audience, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *PGEventStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notification_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}
