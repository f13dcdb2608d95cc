package domain

import "context"

// Object is the minimal shape every notification target exposes.
// Feature modules attach further capabilities via the optional interfaces
// below; the resolver branches on capability presence.
type Object interface {
	ObjectID() string
	ContentType() string
	Title() string
	URL() string
}

// Owned is implemented by objects that know their creator.
type Owned interface {
	CreatorID() string
}

// Grouped is implemented by objects that belong to a group.
type Grouped interface {
	ObjectGroup() *Group
}

// Followable is implemented by objects users can follow directly
// (e.g. public events).
type Followable interface {
	FollowedBy(userID string) bool
}

// GroupLike is implemented by objects that are themselves a group
// (group invitations must always be deliverable).
type GroupLike interface {
	AsGroup() *Group
}

// AlwaysModeratable marks objects visible to portal moderators even when
// not publicly readable.
type AlwaysModeratable interface {
	AlwaysModeratable() bool
}

// ObjectGroupOf returns the group an object belongs to: the object itself
// when it is a group, otherwise its Grouped capability.
func ObjectGroupOf(obj Object) *Group {
	if gl, ok := obj.(GroupLike); ok {
		return gl.AsGroup()
	}
	if g, ok := obj.(Grouped); ok {
		return g.ObjectGroup()
	}
	return nil
}

// AccessPolicy answers object visibility questions. Permission evaluation
// lives outside the engine.
type AccessPolicy interface {
	// CanRead reports whether the user may read the object.
	CanRead(ctx context.Context, user User, obj Object) (bool, error)

	// PubliclyReadable reports whether an anonymous visitor may read the
	// object.
	PubliclyReadable(ctx context.Context, obj Object) (bool, error)
}

// ObjectResolver loads a target object by its polymorphic reference.
// Returns errors.ErrNotFound (wrapped) when the object has been deleted.
type ObjectResolver interface {
	ResolveObject(ctx context.Context, contentType, objectID string) (Object, error)
}

// UserDirectory is the engine's read access to platform accounts.
type UserDirectory interface {
	// PortalMembers returns all member accounts of a portal.
	PortalMembers(ctx context.Context, portalID string) ([]User, error)

	// PortalAdmins returns the portal's administrator accounts.
	PortalAdmins(ctx context.Context, portalID string) ([]User, error)
}

// GroupDirectory is the engine's read access to groups and follows.
type GroupDirectory interface {
	// Group loads a group by id.
	Group(ctx context.Context, id string) (*Group, error)

	// IsFollowing reports whether the user follows the group.
	IsFollowing(ctx context.Context, userID, groupID string) (bool, error)

	// MemberGroupIDs returns the ids of the portal's groups the user
	// belongs to.
	MemberGroupIDs(ctx context.Context, userID, portalID string) ([]string, error)
}
