package preferences_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
	"github.com/wechange-eg/cosinnus-notifications/internal/testutil"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	followed := registry.Descriptor{
		Label:              "Followed content was updated",
		Default:            domain.FreqDaily,
		CanBeAlert:         true,
		DigestRenderable:   true,
		SubjectText:        "{actor} updated {target}",
		SnippetTemplate:    "mail/summary_item.html",
		MultiPreferenceSet: registry.FollowedObjectSet,
	}

	r, err := registry.Build(
		map[string]domain.Frequency{registry.FollowedObjectSet: domain.FreqDaily},
		registry.Module{Name: "note", Types: map[string]registry.Descriptor{
			"comment_created": {
				Label:           "A comment was created",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				MailTemplate:    "mail/comment.txt",
				SubjectTemplate: "mail/comment_subject.txt",
			},
			"note_created": {
				Label:           "A note was created",
				Default:         domain.FreqDaily,
				CanBeAlert:      true,
				MailTemplate:    "mail/note.txt",
				SubjectTemplate: "mail/note_subject.txt",
			},
			"followed_object_updated": followed,
		}},
	)
	require.NoError(t, err)
	return r
}

type resolverEnv struct {
	reg      *registry.Registry
	store    *testutil.MemPrefStore
	access   *testutil.Access
	dir      *testutil.Directory
	resolver *preferences.Resolver

	group *domain.Group
	obj   *testutil.Item
	user  domain.User
}

func newResolverEnv(t *testing.T) *resolverEnv {
	t.Helper()
	env := &resolverEnv{
		reg:    testRegistry(t),
		store:  testutil.NewMemPrefStore(),
		access: testutil.NewAccess(),
		dir:    testutil.NewDirectory(),
	}
	env.resolver = preferences.NewResolver(env.reg, env.store, env.access, env.dir)
	env.group = &domain.Group{ID: "g1", PortalID: "p1", Name: "Garden", Active: true}
	env.obj = &testutil.Item{ID: "n1", Type: "note.note", ItemTitle: "Compost tips", Creator: "author", Group: env.group}

	login := time.Now().Add(-time.Hour)
	env.user = domain.User{
		ID: "u1", Email: "u1@example.org", DisplayName: "Uli",
		Active: true, LastLoginAt: &login, TermsAccepted: true,
	}
	return env
}

func (e *resolverEnv) resolve(t *testing.T, typeID string) preferences.Decision {
	t.Helper()
	desc, ok := e.reg.Get(typeID)
	require.True(t, ok)
	d, err := e.resolver.Resolve(context.Background(), e.user, desc, e.obj, e.group)
	require.NoError(t, err)
	return d
}

func TestResolve_DefaultFrequencies(t *testing.T) {
	env := newResolverEnv(t)

	require.Equal(t, preferences.ActionInstant, env.resolve(t, "note.comment_created").Email)
	require.Equal(t, preferences.ActionDeferDaily, env.resolve(t, "note.note_created").Email)
}

func TestResolve_UnreachableUsersAreSuppressed(t *testing.T) {
	env := newResolverEnv(t)

	cases := []func(u *domain.User){
		func(u *domain.User) { u.Email = "" },
		func(u *domain.User) { u.Active = false },
		func(u *domain.User) { u.LastLoginAt = nil },
		func(u *domain.User) { u.TermsAccepted = false },
	}
	for _, mutate := range cases {
		env.user = newResolverEnv(t).user
		mutate(&env.user)
		require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.comment_created").Email)
	}
}

func TestResolve_AnonymousRecipientGetsInstant(t *testing.T) {
	env := newResolverEnv(t)
	env.user = domain.User{Email: "invitee@example.org"}

	d := env.resolve(t, "note.comment_created")
	require.Equal(t, preferences.ActionInstant, d.Email)
	require.False(t, d.Alert)
}

func TestResolve_CreatorIsNotAudience(t *testing.T) {
	env := newResolverEnv(t)
	env.obj.Creator = env.user.ID

	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.comment_created").Email)
}

func TestResolve_UnreadableObjectSuppressesUnlessGroup(t *testing.T) {
	env := newResolverEnv(t)
	env.access.Hide(env.obj)
	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.comment_created").Email)

	// group invitations stay deliverable
	desc, _ := env.reg.Get("note.comment_created")
	d, err := env.resolver.Resolve(context.Background(), env.user, desc, &testutil.GroupItem{Target: env.group}, env.group)
	require.NoError(t, err)
	require.Equal(t, preferences.ActionInstant, d.Email)
}

func TestResolve_GlobalSetting(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		setting domain.GlobalSetting
		want    preferences.EmailAction
	}{
		{domain.GlobalNever, preferences.ActionSuppress},
		{domain.GlobalDaily, preferences.ActionSuppress},
		{domain.GlobalWeekly, preferences.ActionSuppress},
		{domain.GlobalInstant, preferences.ActionInstant},
	}
	for _, tt := range tests {
		t.Run(tt.setting.String(), func(t *testing.T) {
			env := newResolverEnv(t)
			require.NoError(t, env.store.SetGlobalSetting(ctx, env.user.ID, tt.setting))
			// per-type row must be ignored while a blanket global is set
			require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.comment_created", domain.FreqWeekly))
			require.Equal(t, tt.want, env.resolve(t, "note.comment_created").Email)
		})
	}
}

func TestResolve_MultiPreferenceSetGoverns(t *testing.T) {
	ctx := context.Background()
	env := newResolverEnv(t)

	// default for followed_object is daily, so no instant mail
	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.followed_object_updated").Email)

	require.NoError(t, env.store.SetMultiPreference(ctx, env.user.ID, "p1", registry.FollowedObjectSet, domain.FreqInstant))
	require.Equal(t, preferences.ActionInstant, env.resolve(t, "note.followed_object_updated").Email)

	// group rows are never consulted for set-governed types
	require.NoError(t, env.store.SetMultiPreference(ctx, env.user.ID, "p1", registry.FollowedObjectSet, domain.FreqNever))
	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.followed_object_updated", domain.FreqInstant))
	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.followed_object_updated").Email)
}

func TestResolve_NoneRowBeatsEverything(t *testing.T) {
	ctx := context.Background()
	env := newResolverEnv(t)

	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, registry.NoNotificationsID, domain.FreqInstant))
	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.comment_created", domain.FreqInstant))

	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.comment_created").Email)
}

func TestResolve_AllRow(t *testing.T) {
	ctx := context.Background()
	env := newResolverEnv(t)

	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, registry.AllNotificationsID, domain.FreqWeekly))
	// the blanket row shadows the more specific one
	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.comment_created", domain.FreqInstant))

	require.Equal(t, preferences.ActionDeferWeekly, env.resolve(t, "note.comment_created").Email)

	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, registry.AllNotificationsID, domain.FreqInstant))
	require.Equal(t, preferences.ActionInstant, env.resolve(t, "note.note_created").Email)
}

func TestResolve_ExplicitTypeRow(t *testing.T) {
	ctx := context.Background()
	env := newResolverEnv(t)

	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.comment_created", domain.FreqNever))
	require.Equal(t, preferences.ActionSuppress, env.resolve(t, "note.comment_created").Email)

	require.NoError(t, env.store.SetGroupPreference(ctx, env.user.ID, env.group.ID, "note.comment_created", domain.FreqDaily))
	require.Equal(t, preferences.ActionDeferDaily, env.resolve(t, "note.comment_created").Email)
}

func TestResolve_AlertDecision(t *testing.T) {
	env := newResolverEnv(t)

	// not following, not creator: no alert
	require.False(t, env.resolve(t, "note.comment_created").Alert)

	// following the object's group
	env.dir.SetFollowing(env.user.ID, env.group.ID, true)
	d := env.resolve(t, "note.comment_created")
	require.True(t, d.Alert)
	require.Equal(t, preferences.AlertReasonFollowGroup, d.AlertReason)
	env.dir.SetFollowing(env.user.ID, env.group.ID, false)

	// following the object directly
	env.obj.Followers = []string{env.user.ID}
	d = env.resolve(t, "note.comment_created")
	require.True(t, d.Alert)
	require.Equal(t, preferences.AlertReasonFollowObject, d.AlertReason)
	env.obj.Followers = nil

	// own object
	env.obj.Creator = env.user.ID
	d = env.resolve(t, "note.comment_created")
	require.True(t, d.Alert)
	require.Equal(t, preferences.AlertReasonCreator, d.AlertReason)
	require.Equal(t, preferences.ActionSuppress, d.Email)

	// unreadable object: never an alert
	env.obj.Creator = env.user.ID
	env.access.Hide(env.obj)
	require.False(t, env.resolve(t, "note.comment_created").Alert)
}

func TestResolve_GroupObjectAlwaysAlerts(t *testing.T) {
	env := newResolverEnv(t)
	desc, _ := env.reg.Get("note.comment_created")

	d, err := env.resolver.Resolve(context.Background(), env.user, desc, &testutil.GroupItem{Target: env.group}, env.group)
	require.NoError(t, err)
	require.True(t, d.Alert)
	require.Equal(t, preferences.AlertReasonFollowGroup, d.AlertReason)
}

func TestResolve_FollowerEndToEndDefault(t *testing.T) {
	// A user following a group with no explicit rows gets the type's
	// registered default as email action plus an alert.
	env := newResolverEnv(t)
	env.dir.SetFollowing(env.user.ID, env.group.ID, true)

	d := env.resolve(t, "note.note_created")
	require.Equal(t, preferences.ActionDeferDaily, d.Email)
	require.True(t, d.Alert)
}

func TestResolveModerator(t *testing.T) {
	ctx := context.Background()
	env := newResolverEnv(t)

	mod := env.user
	mod.PortalAdmin = true
	mod.PortalModerator = true

	ok, err := env.resolver.ResolveModerator(ctx, mod, env.obj)
	require.NoError(t, err)
	require.False(t, ok, "non-public object must not reach moderators")

	env.access.Publish(env.obj)
	ok, err = env.resolver.ResolveModerator(ctx, mod, env.obj)
	require.NoError(t, err)
	require.True(t, ok)

	// admin without moderator opt-in
	adminOnly := env.user
	adminOnly.PortalAdmin = true
	ok, err = env.resolver.ResolveModerator(ctx, adminOnly, env.obj)
	require.NoError(t, err)
	require.False(t, ok)

	// always-moderatable object skips the public check
	hidden := &testutil.ModeratedItem{Item: testutil.Item{ID: "m1", Type: "note.note", Group: env.group}, Always: true}
	ok, err = env.resolver.ResolveModerator(ctx, mod, hidden)
	require.NoError(t, err)
	require.True(t, ok)
}
