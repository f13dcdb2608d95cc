package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
)

// PGDirectory reads accounts, groups, memberships and follows from the
// platform mirror tables.
type PGDirectory struct {
	pool *pgxpool.Pool
}

func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

var (
	_ domain.UserDirectory  = (*PGDirectory)(nil)
	_ domain.GroupDirectory = (*PGDirectory)(nil)
)

const userColumns = `id, email, display_name, avatar_url, profile_url, locale,
	active, last_login_at, terms_accepted, portal_admin, portal_moderator`

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	defer rows.Close()
	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.ProfileURL,
			&u.Locale, &u.Active, &u.LastLoginAt, &u.TermsAccepted,
			&u.PortalAdmin, &u.PortalModerator); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (d *PGDirectory) PortalMembers(ctx context.Context, portalID string) ([]domain.User, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+userColumns+` FROM platform_users WHERE portal_id = $1`, portalID)
	if err != nil {
		return nil, fmt.Errorf("query portal members: %w", err)
	}
	return scanUsers(rows)
}

func (d *PGDirectory) PortalAdmins(ctx context.Context, portalID string) ([]domain.User, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+userColumns+` FROM platform_users WHERE portal_id = $1 AND portal_admin`, portalID)
	if err != nil {
		return nil, fmt.Errorf("query portal admins: %w", err)
	}
	return scanUsers(rows)
}

func (d *PGDirectory) Group(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := d.pool.QueryRow(ctx,
		`SELECT id, portal_id, name, url, avatar_url, active FROM platform_groups WHERE id = $1`, id).
		Scan(&g.ID, &g.PortalID, &g.Name, &g.URL, &g.AvatarURL, &g.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &g, nil
}

func (d *PGDirectory) IsFollowing(ctx context.Context, userID, groupID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM platform_follows WHERE user_id = $1 AND group_id = $2)`,
		userID, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query follow: %w", err)
	}
	return exists, nil
}

func (d *PGDirectory) MemberGroupIDs(ctx context.Context, userID, portalID string) ([]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT m.group_id FROM platform_group_memberships m
		 JOIN platform_groups g ON g.id = m.group_id
		 WHERE m.user_id = $1 AND g.portal_id = $2
		 ORDER BY m.group_id`,
		userID, portalID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// mirrorObject is a notification target loaded from the platform_objects
// mirror table.
type mirrorObject struct {
	contentType string
	objectID    string
	title       string
	url         string
	creatorID   string
	group       *domain.Group
	visibility  string
	followerIDs []string
}

var (
	_ domain.Object     = (*mirrorObject)(nil)
	_ domain.Owned      = (*mirrorObject)(nil)
	_ domain.Followable = (*mirrorObject)(nil)
)

func (o *mirrorObject) ObjectID() string    { return o.objectID }
func (o *mirrorObject) ContentType() string { return o.contentType }
func (o *mirrorObject) Title() string       { return o.title }
func (o *mirrorObject) URL() string         { return o.url }
func (o *mirrorObject) CreatorID() string   { return o.creatorID }

func (o *mirrorObject) ObjectGroup() *domain.Group { return o.group }

func (o *mirrorObject) FollowedBy(userID string) bool {
	return slices.Contains(o.followerIDs, userID)
}

// Visibility values of the platform_objects mirror.
const (
	visibilityPublic  = "public"
	visibilityGroup   = "group"
	visibilityPrivate = "private"
)

// PGObjectResolver loads notification targets from the platform_objects
// mirror table.
type PGObjectResolver struct {
	pool *pgxpool.Pool
}

func NewPGObjectResolver(pool *pgxpool.Pool) *PGObjectResolver {
	return &PGObjectResolver{pool: pool}
}

var _ domain.ObjectResolver = (*PGObjectResolver)(nil)

func (r *PGObjectResolver) ResolveObject(ctx context.Context, contentType, objectID string) (domain.Object, error) {
	var (
		o       mirrorObject
		deleted bool

		// LEFT JOIN columns; nil when the object has no group.
		gID, gPortal, gName, gURL, gAvatar *string
		gActive                            *bool
	)
	err := r.pool.QueryRow(ctx,
		`SELECT o.content_type, o.object_id, o.title, o.url, o.creator_id, o.visibility,
			o.deleted, o.follower_ids,
			g.id, g.portal_id, g.name, g.url, g.avatar_url, g.active
		 FROM platform_objects o
		 LEFT JOIN platform_groups g ON g.id = o.group_id
		 WHERE o.content_type = $1 AND o.object_id = $2`,
		contentType, objectID).
		Scan(&o.contentType, &o.objectID, &o.title, &o.url, &o.creatorID, &o.visibility,
			&deleted, &o.followerIDs,
			&gID, &gPortal, &gName, &gURL, &gAvatar, &gActive)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && deleted) {
		return nil, fmt.Errorf("object %s/%s: %w", contentType, objectID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query object: %w", err)
	}
	if gID != nil {
		o.group = &domain.Group{
			ID:        *gID,
			PortalID:  deref(gPortal),
			Name:      deref(gName),
			URL:       deref(gURL),
			AvatarURL: deref(gAvatar),
			Active:    gActive != nil && *gActive,
		}
	}
	return &o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PGAccessPolicy answers readability questions from the mirror tables:
// public objects are readable by anyone, group objects by group members,
// private objects only by their creator.
type PGAccessPolicy struct {
	pool *pgxpool.Pool
}

func NewPGAccessPolicy(pool *pgxpool.Pool) *PGAccessPolicy {
	return &PGAccessPolicy{pool: pool}
}

var _ domain.AccessPolicy = (*PGAccessPolicy)(nil)

func (p *PGAccessPolicy) CanRead(ctx context.Context, user domain.User, obj domain.Object) (bool, error) {
	mo, ok := obj.(*mirrorObject)
	if !ok {
		// Objects handed in directly by the platform carry their own
		// access semantics; default to readable.
		return true, nil
	}
	switch mo.visibility {
	case visibilityPublic:
		return true, nil
	case visibilityPrivate:
		return user.ID != "" && user.ID == mo.creatorID, nil
	default:
		if user.ID == "" || mo.group == nil {
			return false, nil
		}
		var member bool
		err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM platform_group_memberships WHERE user_id = $1 AND group_id = $2)`,
			user.ID, mo.group.ID).Scan(&member)
		if err != nil {
			return false, fmt.Errorf("query membership: %w", err)
		}
		return member, nil
	}
}

func (p *PGAccessPolicy) PubliclyReadable(ctx context.Context, obj domain.Object) (bool, error) {
	if mo, ok := obj.(*mirrorObject); ok {
		return mo.visibility == visibilityPublic, nil
	}
	return false, nil
}
