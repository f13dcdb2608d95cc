package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// PGRunStateStore is the pgx-backed digest run state.
type PGRunStateStore struct {
	pool *pgxpool.Pool
}

func NewPGRunStateStore(pool *pgxpool.Pool) *PGRunStateStore {
	return &PGRunStateStore{pool: pool}
}

var _ RunStateStore = (*PGRunStateStore)(nil)

func (s *PGRunStateStore) LastRun(ctx context.Context, portalID string, freq domain.Frequency) (time.Time, bool, error) {
	var end time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT window_end FROM digest_run_states WHERE portal_id = $1 AND frequency = $2`,
		portalID, freq.String()).Scan(&end)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query digest run state: %w", err)
	}
	return end, true, nil
}

func (s *PGRunStateStore) SetLastRun(ctx context.Context, portalID string, freq domain.Frequency, end time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO digest_run_states (portal_id, frequency, window_end, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (portal_id, frequency)
		 DO UPDATE SET window_end = EXCLUDED.window_end, updated_at = now()`,
		portalID, freq.String(), end)
	if err != nil {
		return fmt.Errorf("upsert digest run state: %w", err)
	}
	return nil
}
