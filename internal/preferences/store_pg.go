package preferences

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// PGStore is the pgx-backed preference store.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) GroupPreference(ctx context.Context, userID, groupID, typeID string) (domain.Frequency, bool, error) {
	var setting string
	err := s.pool.QueryRow(ctx,
		`SELECT setting FROM user_notification_preferences
		 WHERE user_id = $1 AND group_id = $2 AND notification_type_id = $3`,
		userID, groupID, typeID).Scan(&setting)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FreqNever, false, nil
	}
	if err != nil {
		return domain.FreqNever, false, fmt.Errorf("query group preference: %w", err)
	}
	f, err := domain.ParseFrequency(setting)
	if err != nil {
		return domain.FreqNever, false, fmt.Errorf("stored group preference: %w", err)
	}
	return f, true, nil
}

func (s *PGStore) SetGroupPreference(ctx context.Context, userID, groupID, typeID string, setting domain.Frequency) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_notification_preferences (user_id, group_id, notification_type_id, setting, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, group_id, notification_type_id)
		 DO UPDATE SET setting = EXCLUDED.setting, updated_at = now()`,
		userID, groupID, typeID, setting.String())
	if err != nil {
		return fmt.Errorf("upsert group preference: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteGroupPreferences(ctx context.Context, userID, groupID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_notification_preferences WHERE user_id = $1 AND group_id = $2`,
		userID, groupID)
	if err != nil {
		return fmt.Errorf("delete group preferences: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteGroupPreference(ctx context.Context, userID, groupID, typeID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_notification_preferences
		 WHERE user_id = $1 AND group_id = $2 AND notification_type_id = $3`,
		userID, groupID, typeID)
	if err != nil {
		return fmt.Errorf("delete group preference: %w", err)
	}
	return nil
}

func (s *PGStore) GroupRows(ctx context.Context, userID string, groupIDs []string) ([]GroupPreference, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, group_id, notification_type_id, setting, updated_at
		 FROM user_notification_preferences
		 WHERE user_id = $1 AND group_id = ANY($2)`,
		userID, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("query group rows: %w", err)
	}
	defer rows.Close()

	var out []GroupPreference
	for rows.Next() {
		var (
			p       GroupPreference
			setting string
		)
		if err := rows.Scan(&p.UserID, &p.GroupID, &p.TypeID, &setting, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		if p.Setting, err = domain.ParseFrequency(setting); err != nil {
			return nil, fmt.Errorf("stored group row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGStore) GlobalSetting(ctx context.Context, userID string) (domain.GlobalSetting, error) {
	var setting string
	err := s.pool.QueryRow(ctx,
		`SELECT setting FROM global_notification_settings WHERE user_id = $1`,
		userID).Scan(&setting)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GlobalGroupIndividual, nil
	}
	if err != nil {
		return domain.GlobalGroupIndividual, fmt.Errorf("query global setting: %w", err)
	}
	g, err := domain.ParseGlobalSetting(setting)
	if err != nil {
		return domain.GlobalGroupIndividual, fmt.Errorf("stored global setting: %w", err)
	}
	return g, nil
}

func (s *PGStore) SetGlobalSetting(ctx context.Context, userID string, setting domain.GlobalSetting) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO global_notification_settings (user_id, setting, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET setting = EXCLUDED.setting, updated_at = now()`,
		userID, setting.String())
	if err != nil {
		return fmt.Errorf("upsert global setting: %w", err)
	}
	return nil
}

func (s *PGStore) MultiPreference(ctx context.Context, userID, portalID, setID string) (domain.Frequency, bool, error) {
	var setting string
	err := s.pool.QueryRow(ctx,
		`SELECT setting FROM user_multi_notification_preferences
		 WHERE user_id = $1 AND portal_id = $2 AND set_id = $3`,
		userID, portalID, setID).Scan(&setting)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FreqNever, false, nil
	}
	if err != nil {
		return domain.FreqNever, false, fmt.Errorf("query multi-preference: %w", err)
	}
	f, err := domain.ParseFrequency(setting)
	if err != nil {
		return domain.FreqNever, false, fmt.Errorf("stored multi-preference: %w", err)
	}
	return f, true, nil
}

func (s *PGStore) SetMultiPreference(ctx context.Context, userID, portalID, setID string, setting domain.Frequency) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_multi_notification_preferences (user_id, portal_id, set_id, setting, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, portal_id, set_id)
		 DO UPDATE SET setting = EXCLUDED.setting, updated_at = now()`,
		userID, portalID, setID, setting.String())
	if err != nil {
		return fmt.Errorf("upsert multi-preference: %w", err)
	}
	return nil
}
