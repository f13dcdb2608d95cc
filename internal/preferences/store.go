package preferences

import (
	"context"
	"time"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// GroupPreference is one explicit per-user, per-group, per-type row.
// TypeID may also be one of the registry's reserved blanket ids
// (registry.AllNotificationsID, registry.NoNotificationsID).
type GroupPreference struct {
	UserID    string
	GroupID   string
	TypeID    string
	Setting   domain.Frequency
	UpdatedAt time.Time
}

// Store persists notification preferences. The absence of a row is
// meaningful: resolution falls through to the next cascade layer.
type Store interface {
	// GroupPreference returns the explicit row for (user, group, type).
	// ok is false when no row exists.
	GroupPreference(ctx context.Context, userID, groupID, typeID string) (domain.Frequency, bool, error)

	// SetGroupPreference upserts an explicit row.
	SetGroupPreference(ctx context.Context, userID, groupID, typeID string, setting domain.Frequency) error

	// DeleteGroupPreferences removes all explicit rows of the user for the
	// group. Used when switching a group to a blanket setting.
	DeleteGroupPreferences(ctx context.Context, userID, groupID string) error

	// DeleteGroupPreference removes one explicit row. Missing rows are not
	// an error. Used when switching a group back to per-type settings.
	DeleteGroupPreference(ctx context.Context, userID, groupID, typeID string) error

	// GroupRows returns every explicit row of the user for the given
	// groups. Digest generation reads preferences in bulk through this.
	GroupRows(ctx context.Context, userID string, groupIDs []string) ([]GroupPreference, error)

	// GlobalSetting returns the user's portal-wide blanket setting.
	// Users without a stored row default to GlobalGroupIndividual.
	GlobalSetting(ctx context.Context, userID string) (domain.GlobalSetting, error)

	// SetGlobalSetting upserts the user's portal-wide blanket setting.
	SetGlobalSetting(ctx context.Context, userID string, setting domain.GlobalSetting) error

	// MultiPreference returns the user's portal-scoped setting for a
	// multi-preference set. ok is false when no row exists.
	MultiPreference(ctx context.Context, userID, portalID, setID string) (domain.Frequency, bool, error)

	// SetMultiPreference upserts the user's setting for a
	// multi-preference set.
	SetMultiPreference(ctx context.Context, userID, portalID, setID string, setting domain.Frequency) error
}
