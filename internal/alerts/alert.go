// Package alerts implements the in-app alert stream: creation, merge of
// related alerts into multi-user and bundle alerts, and the read surface.
package alerts

import (
	"strings"
	"time"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// AlertType classifies an alert's merge state. Transitions are one-way:
// Single may become MultiUser or Bundle exactly once, never the reverse
// and never between the two merged types.
type AlertType int

const (
	// TypeSingle is an unmerged alert for one actor and one target.
	TypeSingle AlertType = iota
	// TypeMultiUser collects several actors acting on the same target.
	TypeMultiUser
	// TypeBundle collects several targets of the same actor in one group.
	TypeBundle
)

func (t AlertType) String() string {
	switch t {
	case TypeSingle:
		return "single"
	case TypeMultiUser:
		return "multi_user"
	case TypeBundle:
		return "bundle"
	}
	return "unknown"
}

// ActorRef is a cached snapshot of an acting user for display.
type ActorRef struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
}

// BundleRef is a cached snapshot of a bundled target for display.
type BundleRef struct {
	ObjectID string `json:"object_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Icon     string `json:"icon"`
}

// Alert is one row of a user's alert stream. Display fields are cached at
// write time so the stream renders without loading target objects.
type Alert struct {
	ID     string
	UserID string

	PortalID    string
	GroupID     string
	TypeID      string
	ContentType string
	ObjectID    string

	// Cached display fields of the primary target.
	Title        string
	URL          string
	Icon         string
	Subtitle     string
	SubtitleIcon string

	// Label is the untranslated label template with {actor}, {count} and
	// {target} placeholders, re-rendered in the viewer's locale at read
	// time. Regenerated on every merge.
	Label string

	// ActionUser is the most recent actor.
	ActionUser ActorRef

	ItemHash   string
	BundleHash string

	// ReasonKey names the relation that earned the recipient the alert
	// (is_creator, follow_group, follow_object).
	ReasonKey string

	Type    AlertType
	Counter int
	Seen    bool

	LastEventAt time.Time
	CreatedAt   time.Time

	// Exactly one of the two lists is populated, matching Type; Single
	// alerts have neither.
	MultiUserList []ActorRef
	BundleList    []BundleRef
}

// actorIDs returns the ids of all actors represented by the alert.
func (a *Alert) actorIDs() []string {
	if a.Type == TypeMultiUser {
		ids := make([]string, 0, len(a.MultiUserList))
		for _, ref := range a.MultiUserList {
			ids = append(ids, ref.UserID)
		}
		return ids
	}
	return []string{a.ActionUser.UserID}
}

// ItemHash identifies the same content item within a portal and group.
// It is the merge key for multi-user alerts.
func ItemHash(portalID, groupID, contentType, typeID, objectID string) string {
	return strings.Join([]string{portalID, groupID, contentType, typeID, objectID}, "/")
}

// BundleHash identifies the same actor acting on the same kind of content
// within a portal and group. It is the merge key for bundle alerts.
func BundleHash(portalID, groupID, contentType, typeID, actorID string) string {
	return strings.Join([]string{portalID, groupID, contentType, typeID, actorID}, "/")
}

// NewCandidate builds an unpersisted Single alert for one recipient from
// an event's actor, target and group. The engine decides whether it is
// stored as-is or merged away.
func NewCandidate(recipientID, typeID string, actor domain.User, obj domain.Object, group *domain.Group) *Alert {
	groupID, portalID := "", ""
	if group != nil {
		groupID, portalID = group.ID, group.PortalID
	}
	a := &Alert{
		UserID:      recipientID,
		PortalID:    portalID,
		GroupID:     groupID,
		TypeID:      typeID,
		ContentType: obj.ContentType(),
		ObjectID:    obj.ObjectID(),
		Title:       obj.Title(),
		URL:         obj.URL(),
		Type:        TypeSingle,
		Counter:     1,
		ActionUser: ActorRef{
			UserID:      actor.ID,
			DisplayName: actor.DisplayName,
			URL:         actor.ProfileURL,
			Icon:        actor.AvatarURL,
		},
	}
	if group != nil {
		a.Subtitle = group.Name
		a.SubtitleIcon = group.AvatarURL
	}
	a.ItemHash = ItemHash(portalID, groupID, a.ContentType, typeID, a.ObjectID)
	a.BundleHash = BundleHash(portalID, groupID, a.ContentType, typeID, actor.ID)
	return a
}
