package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/dispatch"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/mail"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
	"github.com/wechange-eg/cosinnus-notifications/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.InitLogger()
	m.Run()
}

type env struct {
	reg        *registry.Registry
	prefs      *testutil.MemPrefStore
	access     *testutil.Access
	dir        *testutil.Directory
	events     *testutil.MemEventStore
	alertStore *testutil.MemAlertStore
	sender     *testutil.CapturingSender
	dispatcher *dispatch.Dispatcher

	group *domain.Group
	actor domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()

	reg, err := registry.Build(nil,
		registry.Module{Name: "note", Types: map[string]registry.Descriptor{
			"comment_created": {
				Label:           "A comment was created",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				SubjectText:     "{actor} commented on {target}",
				MailTemplate:    "mail/comment.txt",
				SubjectTemplate: "mail/comment_subject.txt",
			},
			"note_created": {
				Label:           "A note was created",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				Moderatable:     true,
				SubjectText:     "{actor} wrote {target}",
				MailTemplate:    "mail/note.txt",
				SubjectTemplate: "mail/note_subject.txt",
			},
		}},
	)
	require.NoError(t, err)

	e := &env{
		reg:        reg,
		prefs:      testutil.NewMemPrefStore(),
		access:     testutil.NewAccess(),
		dir:        testutil.NewDirectory(),
		events:     &testutil.MemEventStore{},
		alertStore: &testutil.MemAlertStore{},
		sender:     testutil.NewCapturingSender(),
	}
	resolver := preferences.NewResolver(reg, e.prefs, e.access, e.dir)
	engine := alerts.NewEngine(reg, e.alertStore, 72*time.Hour, 3*time.Hour)
	e.dispatcher = dispatch.NewDispatcher(reg, resolver, engine, e.events, e.dir, e.sender, mail.PlainRenderer{}, nil)

	e.group = &domain.Group{ID: "g1", PortalID: "p1", Name: "Garden", URL: "/group/g1"}
	e.actor = user("actor", "Alex")
	return e
}

func user(id, name string) domain.User {
	login := time.Now().Add(-time.Hour)
	return domain.User{
		ID: id, Email: id + "@example.org", DisplayName: name,
		Active: true, LastLoginAt: &login, TermsAccepted: true,
	}
}

func (e *env) item(id string) *testutil.Item {
	return &testutil.Item{ID: id, Type: "note.note", ItemTitle: "Note " + id, ItemURL: "/note/" + id, Creator: e.actor.ID, Group: e.group}
}

func (e *env) signal(typeID string, obj domain.Object, audience ...domain.User) dispatch.Signal {
	return dispatch.Signal{Actor: e.actor, Object: obj, Audience: audience, TypeID: typeID}
}

func TestNotify_StandaloneSendsAndRecords(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")

	err := e.dispatcher.Notify(context.Background(), e.signal("note.comment_created", e.item("n1"), u), "", true)
	require.NoError(t, err)

	sent := e.sender.SentTo(u.Email)
	require.Len(t, sent, 1)
	require.Equal(t, "Alex commented on Note n1", sent[0].Subject)

	require.Len(t, e.events.Events, 1)
	ev := e.events.Events[0]
	require.Equal(t, "p1", ev.PortalID)
	require.Equal(t, "note.comment_created", ev.TypeID)
	require.Equal(t, []string{"u1"}, ev.Audience)
}

func TestNotify_UnknownTypeRejected(t *testing.T) {
	e := newEnv(t)
	err := e.dispatcher.Notify(context.Background(), e.signal("nope.thing", e.item("n1")), "", true)
	require.Error(t, err)
}

func TestNotify_SessionSendsOneEmailPerRecipient(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")
	ctx := context.Background()

	obj := e.item("n1")
	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.comment_created", obj, u), "s1", false))
	// nothing processed until the session is final
	require.Empty(t, e.sender.Sent)

	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.note_created", obj, u), "s1", true))

	// both signals resolved to Instant; the first one won
	sent := e.sender.SentTo(u.Email)
	require.Len(t, sent, 1)
	require.Equal(t, "Alex commented on Note n1", sent[0].Subject)

	// one durable event per signal regardless of the email outcome
	require.Len(t, e.events.Events, 2)
}

func TestNotify_SessionAlertOncePerRecipient(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")
	e.dir.SetFollowing(u.ID, e.group.ID, true)
	ctx := context.Background()

	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.comment_created", e.item("n1"), u), "s1", false))
	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.note_created", e.item("n2"), u), "s1", true))

	require.Len(t, e.alertStore.Alerts, 1)
	require.Equal(t, "note.comment_created", e.alertStore.Alerts[0].TypeID)
	require.Equal(t, preferences.AlertReasonFollowGroup, e.alertStore.Alerts[0].ReasonKey)
}

func TestNotify_DiscardDropsSession(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")
	ctx := context.Background()

	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.comment_created", e.item("n1"), u), "s1", false))
	e.dispatcher.Discard("s1")
	require.NoError(t, e.dispatcher.Notify(ctx, e.signal("note.note_created", e.item("n2"), u), "s1", true))

	// only the post-discard signal was processed
	require.Len(t, e.sender.Sent, 1)
	require.Len(t, e.events.Events, 1)
	require.Equal(t, "note.note_created", e.events.Events[0].TypeID)
}

func TestNotify_FailedSendDoesNotAbortOthers(t *testing.T) {
	e := newEnv(t)
	u1, u2 := user("u1", "Uli"), user("u2", "Vera")
	e.sender.Fail[u1.Email] = errors.New("smtp unavailable")

	err := e.dispatcher.Notify(context.Background(), e.signal("note.comment_created", e.item("n1"), u1, u2), "", true)
	require.NoError(t, err)

	require.Empty(t, e.sender.SentTo(u1.Email))
	require.Len(t, e.sender.SentTo(u2.Email), 1)
	require.Len(t, e.events.Events, 1)
}

func TestNotify_AudienceSanitizedAndDeduplicated(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")
	noEmail := user("u2", "Vera")
	noEmail.Email = ""
	anon := domain.User{Email: "invitee@example.org"}

	err := e.dispatcher.Notify(context.Background(),
		e.signal("note.comment_created", e.item("n1"), u, u, noEmail, anon, anon), "", true)
	require.NoError(t, err)

	require.Len(t, e.sender.SentTo(u.Email), 1)
	require.Len(t, e.sender.SentTo(anon.Email), 1)

	// anonymous recipients never appear in the durable audience
	require.Len(t, e.events.Events, 1)
	require.Equal(t, []string{"u1"}, e.events.Events[0].Audience)
}

func TestNotify_AnonymousOnlyAudienceRecordsNoEvent(t *testing.T) {
	e := newEnv(t)
	anon := domain.User{Email: "invitee@example.org"}

	err := e.dispatcher.Notify(context.Background(), e.signal("note.comment_created", e.item("n1"), anon), "", true)
	require.NoError(t, err)

	require.Len(t, e.sender.SentTo(anon.Email), 1)
	require.Empty(t, e.events.Events)
}

func TestNotify_ModeratableReachesOptedInAdmins(t *testing.T) {
	e := newEnv(t)
	mod := user("mod", "Mona")
	mod.PortalAdmin = true
	mod.PortalModerator = true
	adminOnly := user("adm", "Arno")
	adminOnly.PortalAdmin = true
	e.dir.Admins["p1"] = []domain.User{mod, adminOnly}

	obj := e.item("n1")
	e.access.Publish(obj)

	err := e.dispatcher.Notify(context.Background(), e.signal("note.note_created", obj), "", true)
	require.NoError(t, err)

	require.Len(t, e.sender.SentTo(mod.Email), 1)
	require.Empty(t, e.sender.SentTo(adminOnly.Email))
}

func TestNotify_ObjectWithoutGroupIsSkipped(t *testing.T) {
	e := newEnv(t)
	u := user("u1", "Uli")
	orphan := &testutil.Item{ID: "x1", Type: "note.note", ItemTitle: "Orphan"}

	err := e.dispatcher.Notify(context.Background(), e.signal("note.comment_created", orphan, u), "", true)
	require.NoError(t, err)
	require.Empty(t, e.sender.Sent)
	require.Empty(t, e.events.Events)
}
