package infrastructure

import (
	"context"
	"fmt"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

// schema holds the engine's tables. The statements are idempotent; AutoMigrate
// is meant for development and small deployments, larger ones manage the
// schema externally.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS notification_events (
		id           TEXT PRIMARY KEY,
		portal_id    TEXT NOT NULL,
		actor_id     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		object_id    TEXT NOT NULL,
		group_id     TEXT NOT NULL,
		notification_type_id TEXT NOT NULL,
		audience     TEXT[] NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_events_window
		ON notification_events (portal_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS notification_alerts (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		portal_id     TEXT NOT NULL,
		group_id      TEXT NOT NULL,
		notification_type_id TEXT NOT NULL,
		content_type  TEXT NOT NULL,
		object_id     TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		icon          TEXT NOT NULL DEFAULT '',
		subtitle      TEXT NOT NULL DEFAULT '',
		subtitle_icon TEXT NOT NULL DEFAULT '',
		label         TEXT NOT NULL DEFAULT '',
		action_user   JSONB NOT NULL DEFAULT '{}',
		item_hash     TEXT NOT NULL,
		bundle_hash   TEXT NOT NULL,
		reason_key    TEXT NOT NULL DEFAULT '',
		alert_type    INT NOT NULL DEFAULT 0,
		counter       INT NOT NULL DEFAULT 1,
		seen          BOOLEAN NOT NULL DEFAULT false,
		last_event_at TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		multi_user_list JSONB NOT NULL DEFAULT 'null',
		bundle_list     JSONB NOT NULL DEFAULT 'null'
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_notification_alerts_user_item
		ON notification_alerts (user_id, item_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_alerts_user_bundle
		ON notification_alerts (user_id, bundle_hash, last_event_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_alerts_stream
		ON notification_alerts (user_id, last_event_at DESC)`,

	`CREATE TABLE IF NOT EXISTS user_notification_preferences (
		user_id    TEXT NOT NULL,
		group_id   TEXT NOT NULL,
		notification_type_id TEXT NOT NULL,
		setting    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, group_id, notification_type_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_multi_notification_preferences (
		user_id    TEXT NOT NULL,
		portal_id  TEXT NOT NULL,
		set_id     TEXT NOT NULL,
		setting    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, portal_id, set_id)
	)`,

	`CREATE TABLE IF NOT EXISTS global_notification_settings (
		user_id    TEXT PRIMARY KEY,
		setting    TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS digest_run_states (
		portal_id  TEXT NOT NULL,
		frequency  TEXT NOT NULL,
		window_end TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (portal_id, frequency)
	)`,

	// Mirror tables kept in sync by the embedding platform. The engine
	// only reads them; writes happen through the platform's own sync job.
	`CREATE TABLE IF NOT EXISTS platform_users (
		id               TEXT PRIMARY KEY,
		portal_id        TEXT NOT NULL,
		email            TEXT NOT NULL DEFAULT '',
		display_name     TEXT NOT NULL DEFAULT '',
		avatar_url       TEXT NOT NULL DEFAULT '',
		profile_url      TEXT NOT NULL DEFAULT '',
		locale           TEXT NOT NULL DEFAULT '',
		active           BOOLEAN NOT NULL DEFAULT true,
		last_login_at    TIMESTAMPTZ,
		terms_accepted   BOOLEAN NOT NULL DEFAULT false,
		portal_admin     BOOLEAN NOT NULL DEFAULT false,
		portal_moderator BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_platform_users_portal
		ON platform_users (portal_id)`,

	`CREATE TABLE IF NOT EXISTS platform_groups (
		id         TEXT PRIMARY KEY,
		portal_id  TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		url        TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		active     BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS platform_group_memberships (
		user_id  TEXT NOT NULL,
		group_id TEXT NOT NULL,
		PRIMARY KEY (user_id, group_id)
	)`,

	`CREATE TABLE IF NOT EXISTS platform_follows (
		user_id  TEXT NOT NULL,
		group_id TEXT NOT NULL,
		PRIMARY KEY (user_id, group_id)
	)`,

	`CREATE TABLE IF NOT EXISTS platform_objects (
		content_type TEXT NOT NULL,
		object_id    TEXT NOT NULL,
		portal_id    TEXT NOT NULL,
		group_id     TEXT NOT NULL DEFAULT '',
		creator_id   TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		url          TEXT NOT NULL DEFAULT '',
		visibility   TEXT NOT NULL DEFAULT 'group',
		deleted      BOOLEAN NOT NULL DEFAULT false,
		follower_ids TEXT[] NOT NULL DEFAULT '{}',
		PRIMARY KEY (content_type, object_id)
	)`,
}

// AutoMigrate creates the engine's tables and the River queue tables.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	logger.Info("running schema migration...")
	for _, stmt := range schema {
		if _, err := c.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration: %w", err)
		}
	}
	logger.Info("schema migration completed")

	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("river migration completed", zap.Int("versions_applied", len(res.Versions)))
	}
	return nil
}
