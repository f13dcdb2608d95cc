package preferences

import (
	"context"
	"fmt"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// EmailAction is the outcome of the email half of a resolution.
type EmailAction int

const (
	// ActionSuppress sends nothing for this recipient.
	ActionSuppress EmailAction = iota
	// ActionInstant sends a mail immediately within the session.
	ActionInstant
	// ActionDeferDaily leaves delivery to the daily digest run.
	ActionDeferDaily
	// ActionDeferWeekly leaves delivery to the weekly digest run.
	ActionDeferWeekly
)

func (a EmailAction) String() string {
	switch a {
	case ActionSuppress:
		return "suppress"
	case ActionInstant:
		return "instant"
	case ActionDeferDaily:
		return "defer_daily"
	case ActionDeferWeekly:
		return "defer_weekly"
	}
	return fmt.Sprintf("email_action(%d)", int(a))
}

func deferAction(f domain.Frequency) EmailAction {
	if f == domain.FreqWeekly {
		return ActionDeferWeekly
	}
	return ActionDeferDaily
}

// Alert reason keys exposed on the read surface; they name which
// relation to the object earned the recipient the alert.
const (
	AlertReasonCreator      = "is_creator"
	AlertReasonFollowGroup  = "follow_group"
	AlertReasonFollowObject = "follow_object"
)

// Decision is the resolved delivery outcome for one (recipient, signal)
// pair. The alert decision is independent of the email one.
type Decision struct {
	Email EmailAction
	Alert bool

	// AlertReason is the alert reason key; empty when Alert is false.
	AlertReason string

	// Reason is the reason key explaining to the recipient why the mail
	// was sent, shown in the mail footer.
	Reason string
}

// Resolver evaluates the layered preference cascade for a recipient.
type Resolver struct {
	registry *registry.Registry
	store    Store
	access   domain.AccessPolicy
	groups   domain.GroupDirectory
}

func NewResolver(reg *registry.Registry, store Store, access domain.AccessPolicy, groups domain.GroupDirectory) *Resolver {
	return &Resolver{registry: reg, store: store, access: access, groups: groups}
}

// Resolve evaluates the email cascade and the alert decision for one
// recipient. The cascade is ordered; the first matching layer wins. group
// may be nil only for group-like objects.
func (r *Resolver) Resolve(ctx context.Context, user domain.User, desc *registry.Descriptor, obj domain.Object, group *domain.Group) (Decision, error) {
	d := Decision{Email: ActionSuppress, Reason: desc.Reason}

	email, err := r.resolveEmail(ctx, user, desc, obj, group)
	if err != nil {
		return d, err
	}
	d.Email = email

	if desc.CanBeAlert {
		reason, err := r.resolveAlert(ctx, user, obj, group)
		if err != nil {
			return d, err
		}
		d.Alert = reason != ""
		d.AlertReason = reason
	}
	return d, nil
}

func (r *Resolver) resolveEmail(ctx context.Context, user domain.User, desc *registry.Descriptor, obj domain.Object, group *domain.Group) (EmailAction, error) {
	if !user.CanReceiveEmail() {
		return ActionSuppress, nil
	}

	// Virtual recipients (invite-by-email) have no preferences to consult.
	if user.Anonymous() {
		return ActionInstant, nil
	}

	if !user.Active || user.LastLoginAt == nil || !user.TermsAccepted {
		return ActionSuppress, nil
	}

	if owned, ok := obj.(domain.Owned); ok {
		if owned.CreatorID() == user.ID && !desc.AllowCreatorAsAudience {
			return ActionSuppress, nil
		}
	}

	// Group invitations must always be deliverable; everything else
	// requires read access.
	if _, isGroup := obj.(domain.GroupLike); !isGroup {
		readable, err := r.access.CanRead(ctx, user, obj)
		if err != nil {
			return ActionSuppress, fmt.Errorf("read check for user %s: %w", user.ID, err)
		}
		if !readable {
			return ActionSuppress, nil
		}
	}

	global, err := r.store.GlobalSetting(ctx, user.ID)
	if err != nil {
		return ActionSuppress, fmt.Errorf("global setting for user %s: %w", user.ID, err)
	}
	switch global {
	case domain.GlobalNever, domain.GlobalDaily, domain.GlobalWeekly:
		// Digest globals are handled by the digest run, never here.
		return ActionSuppress, nil
	case domain.GlobalInstant:
		return ActionInstant, nil
	}

	// Types governed by a multi-preference set never consult group rows.
	if desc.MultiPreferenceSet != "" {
		setting, err := r.multiPreference(ctx, user.ID, group, desc.MultiPreferenceSet)
		if err != nil {
			return ActionSuppress, err
		}
		if setting == domain.FreqInstant {
			return ActionInstant, nil
		}
		return ActionSuppress, nil
	}

	if group == nil {
		return ActionSuppress, nil
	}

	if _, ok, err := r.store.GroupPreference(ctx, user.ID, group.ID, registry.NoNotificationsID); err != nil {
		return ActionSuppress, fmt.Errorf("none row for user %s: %w", user.ID, err)
	} else if ok {
		return ActionSuppress, nil
	}

	if all, ok, err := r.store.GroupPreference(ctx, user.ID, group.ID, registry.AllNotificationsID); err != nil {
		return ActionSuppress, fmt.Errorf("all row for user %s: %w", user.ID, err)
	} else if ok {
		switch {
		case all == domain.FreqInstant:
			return ActionInstant, nil
		case all.IsDigest():
			return deferAction(all), nil
		}
		return ActionSuppress, nil
	}

	setting, ok, err := r.store.GroupPreference(ctx, user.ID, group.ID, desc.ID)
	if err != nil {
		return ActionSuppress, fmt.Errorf("type row for user %s: %w", user.ID, err)
	}
	if !ok {
		setting = desc.Default
	}
	switch {
	case setting == domain.FreqInstant:
		return ActionInstant, nil
	case setting.IsDigest():
		return deferAction(setting), nil
	}
	return ActionSuppress, nil
}

func (r *Resolver) multiPreference(ctx context.Context, userID string, group *domain.Group, setID string) (domain.Frequency, error) {
	portalID := ""
	if group != nil {
		portalID = group.PortalID
	}
	setting, ok, err := r.store.MultiPreference(ctx, userID, portalID, setID)
	if err != nil {
		return domain.FreqNever, fmt.Errorf("multi-preference %s for user %s: %w", setID, userID, err)
	}
	if ok {
		return setting, nil
	}
	if def, ok := r.registry.MultiPreferenceDefault(setID); ok {
		return def, nil
	}
	return domain.FreqNever, nil
}

// resolveAlert returns the alert reason key, or "" when the recipient
// gets no alert.
func (r *Resolver) resolveAlert(ctx context.Context, user domain.User, obj domain.Object, group *domain.Group) (string, error) {
	if !user.Verified() {
		return "", nil
	}

	// Group invitations are always visible as alerts.
	if _, isGroup := obj.(domain.GroupLike); isGroup {
		return AlertReasonFollowGroup, nil
	}

	readable, err := r.access.CanRead(ctx, user, obj)
	if err != nil {
		return "", fmt.Errorf("alert read check for user %s: %w", user.ID, err)
	}
	if !readable {
		return "", nil
	}

	if owned, ok := obj.(domain.Owned); ok && owned.CreatorID() == user.ID {
		return AlertReasonCreator, nil
	}
	if group != nil {
		following, err := r.groups.IsFollowing(ctx, user.ID, group.ID)
		if err != nil {
			return "", fmt.Errorf("follow check for user %s: %w", user.ID, err)
		}
		if following {
			return AlertReasonFollowGroup, nil
		}
	}
	if f, ok := obj.(domain.Followable); ok && f.FollowedBy(user.ID) {
		return AlertReasonFollowObject, nil
	}
	return "", nil
}

// ResolveModerator decides whether a portal moderator receives an instant
// mail for a moderatable signal. Preferences are ignored; the object must
// be publicly readable or flagged always-moderatable.
func (r *Resolver) ResolveModerator(ctx context.Context, user domain.User, obj domain.Object) (bool, error) {
	if !user.CanReceiveEmail() || !user.Verified() {
		return false, nil
	}
	if !user.PortalAdmin || !user.PortalModerator {
		return false, nil
	}

	if am, ok := obj.(domain.AlwaysModeratable); ok && am.AlwaysModeratable() {
		return true, nil
	}
	public, err := r.access.PubliclyReadable(ctx, obj)
	if err != nil {
		return false, fmt.Errorf("public read check: %w", err)
	}
	return public, nil
}
