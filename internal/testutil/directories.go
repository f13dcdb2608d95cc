package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
)

// Directory is an in-memory user, group and follow directory.
type Directory struct {
	mu sync.Mutex

	// Members maps portal id to member accounts.
	Members map[string][]domain.User

	// Admins maps portal id to administrator accounts.
	Admins map[string][]domain.User

	// Groups maps group id to group.
	Groups map[string]*domain.Group

	// Follows holds "userID/groupID" keys.
	Follows map[string]bool

	// Memberships maps "userID/portalID" to group ids.
	Memberships map[string][]string
}

var (
	_ domain.UserDirectory  = (*Directory)(nil)
	_ domain.GroupDirectory = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{
		Members:     make(map[string][]domain.User),
		Admins:      make(map[string][]domain.User),
		Groups:      make(map[string]*domain.Group),
		Follows:     make(map[string]bool),
		Memberships: make(map[string][]string),
	}
}

func (d *Directory) PortalMembers(ctx context.Context, portalID string) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.User(nil), d.Members[portalID]...), nil
}

func (d *Directory) PortalAdmins(ctx context.Context, portalID string) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.User(nil), d.Admins[portalID]...), nil
}

func (d *Directory) Group(ctx context.Context, id string) (*domain.Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.Groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s not found", id)
	}
	return g, nil
}

func (d *Directory) IsFollowing(ctx context.Context, userID, groupID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Follows[userID+"/"+groupID], nil
}

func (d *Directory) MemberGroupIDs(ctx context.Context, userID, portalID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.Memberships[userID+"/"+portalID]...), nil
}

// SetFollowing records or clears a user's follow of a group.
func (d *Directory) SetFollowing(userID, groupID string, following bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Follows[userID+"/"+groupID] = following
}

// Access is an in-memory access policy. Objects are readable unless their
// "contentType/objectID" key is listed in Hidden; Public lists the keys an
// anonymous visitor may read.
type Access struct {
	mu     sync.Mutex
	Hidden map[string]bool
	Public map[string]bool
}

var _ domain.AccessPolicy = (*Access)(nil)

func NewAccess() *Access {
	return &Access{Hidden: make(map[string]bool), Public: make(map[string]bool)}
}

func objectKey(obj domain.Object) string {
	return obj.ContentType() + "/" + obj.ObjectID()
}

func (a *Access) CanRead(ctx context.Context, user domain.User, obj domain.Object) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.Hidden[objectKey(obj)], nil
}

func (a *Access) PubliclyReadable(ctx context.Context, obj domain.Object) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Public[objectKey(obj)], nil
}

// Hide makes an object unreadable for everyone.
func (a *Access) Hide(obj domain.Object) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Hidden[objectKey(obj)] = true
}

// Publish makes an object readable for anonymous visitors.
func (a *Access) Publish(obj domain.Object) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Public[objectKey(obj)] = true
}

// Resolver is an in-memory object resolver keyed by
// "contentType/objectID". Missing keys behave like deleted objects.
type Resolver struct {
	mu      sync.Mutex
	objects map[string]domain.Object
}

var _ domain.ObjectResolver = (*Resolver)(nil)

func NewResolver(objs ...domain.Object) *Resolver {
	r := &Resolver{objects: make(map[string]domain.Object)}
	for _, o := range objs {
		r.objects[o.ContentType()+"/"+o.ObjectID()] = o
	}
	return r
}

func (r *Resolver) ResolveObject(ctx context.Context, contentType, objectID string) (domain.Object, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[contentType+"/"+objectID]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", contentType, objectID)
	}
	return obj, nil
}

// Add makes an object resolvable.
func (r *Resolver) Add(obj domain.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[obj.ContentType()+"/"+obj.ObjectID()] = obj
}

// Delete removes an object, simulating deletion after event creation.
func (r *Resolver) Delete(obj domain.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects, obj.ContentType()+"/"+obj.ObjectID())
}
