package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
)

// PGStore is the pgx-backed alert store. The merged actor and bundle
// lists are stored as jsonb.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

const alertColumns = `id, user_id, portal_id, group_id, notification_type_id, content_type, object_id,
	title, url, icon, subtitle, subtitle_icon, label,
	action_user, item_hash, bundle_hash, reason_key, alert_type, counter, seen,
	last_event_at, created_at, multi_user_list, bundle_list`

func (s *PGStore) Create(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	actionUser, multiList, bundleList, err := marshalLists(a)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO notification_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		a.ID, a.UserID, a.PortalID, a.GroupID, a.TypeID, a.ContentType, a.ObjectID,
		a.Title, a.URL, a.Icon, a.Subtitle, a.SubtitleIcon, a.Label,
		actionUser, a.ItemHash, a.BundleHash, a.ReasonKey, int(a.Type), a.Counter, a.Seen,
		a.LastEventAt, a.CreatedAt, multiList, bundleList)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("alert for (%s, %s): %w", a.UserID, a.ItemHash, apperrors.ErrAlreadyExists)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, a *Alert) error {
	actionUser, multiList, bundleList, err := marshalLists(a)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE notification_alerts SET
			content_type = $3, object_id = $4, title = $5, url = $6, icon = $7,
			subtitle = $8, subtitle_icon = $9, label = $10, action_user = $11,
			alert_type = $12, counter = $13, seen = $14, last_event_at = $15,
			multi_user_list = $16, bundle_list = $17
		 WHERE id = $1 AND user_id = $2`,
		a.ID, a.UserID, a.ContentType, a.ObjectID, a.Title, a.URL, a.Icon,
		a.Subtitle, a.SubtitleIcon, a.Label, actionUser,
		int(a.Type), a.Counter, a.Seen, a.LastEventAt,
		multiList, bundleList)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update alert %s: %w", a.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *PGStore) FindByItemHash(ctx context.Context, userID, itemHash string, since time.Time) ([]*Alert, error) {
	return s.findByHash(ctx, "item_hash", userID, itemHash, since)
}

func (s *PGStore) FindByBundleHash(ctx context.Context, userID, bundleHash string, since time.Time) ([]*Alert, error) {
	return s.findByHash(ctx, "bundle_hash", userID, bundleHash, since)
}

func (s *PGStore) findByHash(ctx context.Context, column, userID, hash string, since time.Time) ([]*Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM notification_alerts
		 WHERE user_id = $1 AND `+column+` = $2 AND last_event_at >= $3`,
		userID, hash, since)
	if err != nil {
		return nil, fmt.Errorf("query alerts by %s: %w", column, err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *PGStore) ListForUser(ctx context.Context, userID string, newerThan time.Time, limit, offset int) ([]*Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM notification_alerts
		 WHERE user_id = $1 AND last_event_at > $2
		 ORDER BY last_event_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, newerThan, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (s *PGStore) MarkSeen(ctx context.Context, userID, alertID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notification_alerts SET seen = true WHERE id = $1 AND user_id = $2`,
		alertID, userID)
	if err != nil {
		return fmt.Errorf("mark alert seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s: %w", alertID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *PGStore) MarkSeenBefore(ctx context.Context, userID string, t time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notification_alerts SET seen = true
		 WHERE user_id = $1 AND last_event_at <= $2 AND NOT seen`,
		userID, t)
	if err != nil {
		return 0, fmt.Errorf("mark alerts seen: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalLists(a *Alert) (actionUser, multiList, bundleList []byte, err error) {
	if actionUser, err = json.Marshal(a.ActionUser); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal action user: %w", err)
	}
	if multiList, err = json.Marshal(a.MultiUserList); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal multi-user list: %w", err)
	}
	if bundleList, err = json.Marshal(a.BundleList); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal bundle list: %w", err)
	}
	return actionUser, multiList, bundleList, nil
}

func scanAlerts(rows pgx.Rows) ([]*Alert, error) {
	var out []*Alert
	for rows.Next() {
		var (
			a          Alert
			alertType  int
			actionUser []byte
			multiList  []byte
			bundleList []byte
		)
		err := rows.Scan(
			&a.ID, &a.UserID, &a.PortalID, &a.GroupID, &a.TypeID, &a.ContentType, &a.ObjectID,
			&a.Title, &a.URL, &a.Icon, &a.Subtitle, &a.SubtitleIcon, &a.Label,
			&actionUser, &a.ItemHash, &a.BundleHash, &a.ReasonKey, &alertType, &a.Counter, &a.Seen,
			&a.LastEventAt, &a.CreatedAt, &multiList, &bundleList)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = AlertType(alertType)
		if err := json.Unmarshal(actionUser, &a.ActionUser); err != nil {
			return nil, fmt.Errorf("unmarshal action user: %w", err)
		}
		if err := json.Unmarshal(multiList, &a.MultiUserList); err != nil {
			return nil, fmt.Errorf("unmarshal multi-user list: %w", err)
		}
		if err := json.Unmarshal(bundleList, &a.BundleList); err != nil {
			return nil, fmt.Errorf("unmarshal bundle list: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
