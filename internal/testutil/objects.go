// Package testutil provides in-memory collaborators for engine tests.
package testutil

import "github.com/wechange-eg/cosinnus-notifications/internal/domain"

// Item is a configurable stub notification target.
type Item struct {
	ID        string
	Type      string
	ItemTitle string
	ItemURL   string

	Creator   string
	Group     *domain.Group
	Followers []string
}

var (
	_ domain.Object     = (*Item)(nil)
	_ domain.Owned      = (*Item)(nil)
	_ domain.Grouped    = (*Item)(nil)
	_ domain.Followable = (*Item)(nil)
)

func (i *Item) ObjectID() string    { return i.ID }
func (i *Item) ContentType() string { return i.Type }
func (i *Item) Title() string       { return i.ItemTitle }
func (i *Item) URL() string         { return i.ItemURL }

func (i *Item) CreatorID() string         { return i.Creator }
func (i *Item) ObjectGroup() *domain.Group { return i.Group }

func (i *Item) FollowedBy(userID string) bool {
	for _, f := range i.Followers {
		if f == userID {
			return true
		}
	}
	return false
}

// GroupItem is a stub target that is itself a group, e.g. an invitation.
type GroupItem struct {
	Target *domain.Group
}

var (
	_ domain.Object    = (*GroupItem)(nil)
	_ domain.GroupLike = (*GroupItem)(nil)
)

func (g *GroupItem) ObjectID() string       { return g.Target.ID }
func (g *GroupItem) ContentType() string    { return "group" }
func (g *GroupItem) Title() string          { return g.Target.Name }
func (g *GroupItem) URL() string            { return g.Target.URL }
func (g *GroupItem) AsGroup() *domain.Group { return g.Target }

// ModeratedItem wraps an Item with the always-moderatable flag.
type ModeratedItem struct {
	Item
	Always bool
}

var _ domain.AlwaysModeratable = (*ModeratedItem)(nil)

func (m *ModeratedItem) AlwaysModeratable() bool { return m.Always }
