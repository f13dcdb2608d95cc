package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/api/handlers"
	"github.com/wechange-eg/cosinnus-notifications/internal/api/middleware"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
	"github.com/wechange-eg/cosinnus-notifications/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	testutil.InitLogger()
	m.Run()
}

type env struct {
	router     *gin.Engine
	reg        *registry.Registry
	alertStore *testutil.MemAlertStore
	prefs      *testutil.MemPrefStore
	dir        *testutil.Directory

	group *domain.Group
	actor domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()

	reg, err := registry.Build(
		map[string]domain.Frequency{registry.FollowedObjectSet: domain.FreqDaily},
		registry.Module{Name: "note", Types: map[string]registry.Descriptor{
			"note_created": {
				Label:           "A note was created",
				Default:         domain.FreqInstant,
				CanBeAlert:      true,
				SubjectText:     "{actor} wrote {target}",
				MailTemplate:    "mail/note.txt",
				SubjectTemplate: "mail/note_subject.txt",
			},
			"comment_created": {
				Label:              "A comment was created",
				Default:            domain.FreqDaily,
				CanBeAlert:         true,
				MultiPreferenceSet: registry.FollowedObjectSet,
				SubjectText:        "{actor} commented on {target}",
				MailTemplate:       "mail/comment.txt",
				SubjectTemplate:    "mail/comment_subject.txt",
			},
		}},
	)
	require.NoError(t, err)

	e := &env{
		reg:        reg,
		alertStore: &testutil.MemAlertStore{},
		prefs:      testutil.NewMemPrefStore(),
		dir:        testutil.NewDirectory(),
		group:      &domain.Group{ID: "g1", PortalID: "p1", Name: "Gardening", Active: true},
		actor:      domain.User{ID: "u9", DisplayName: "Alex"},
	}
	e.dir.Groups["g1"] = e.group
	e.dir.Memberships["u1/p1"] = []string{"g1"}

	server := handlers.NewServer(handlers.ServerDeps{
		Registry: reg,
		Alerts:   e.alertStore,
		Prefs:    e.prefs,
		Groups:   e.dir,
	})
	e.router = gin.New()
	e.router.Use(middleware.RequestID(), middleware.ErrorHandler())
	server.Register(e.router)
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) seedAlert(t *testing.T, userID, objectID string, lastEventAt time.Time) *alerts.Alert {
	t.Helper()
	obj := &testutil.Item{
		ID:        objectID,
		Type:      "note",
		ItemTitle: "Note " + objectID,
		ItemURL:   "/note/" + objectID,
	}
	a := alerts.NewCandidate(userID, "note.note_created", e.actor, obj, e.group)
	a.LastEventAt = lastEventAt
	a.CreatedAt = lastEventAt
	require.NoError(t, e.alertStore.Create(context.Background(), a))
	return a
}

func TestListAlerts(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	e.seedAlert(t, "u1", "n1", now.Add(-2*time.Hour))
	e.seedAlert(t, "u1", "n2", now.Add(-time.Hour))
	e.seedAlert(t, "u2", "n3", now)

	w := e.do(t, http.MethodGet, "/api/v1/alerts?user_id=u1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts      []alerts.View `json:"alerts"`
		UnseenCount int           `json:"unseen_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 2)
	require.Equal(t, 2, body.UnseenCount)
	// Newest first.
	require.Contains(t, body.Alerts[0].Label, "Note n2")
	require.Contains(t, body.Alerts[1].Label, "Note n1")
}

func TestListAlerts_Pagination(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	for i, id := range []string{"n1", "n2", "n3"} {
		e.seedAlert(t, "u1", id, now.Add(time.Duration(i)*time.Minute))
	}

	w := e.do(t, http.MethodGet, "/api/v1/alerts?user_id=u1&limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts []alerts.View `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 2)
	require.Contains(t, body.Alerts[0].Label, "Note n2")
}

func TestListAlerts_NewerThan(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	e.seedAlert(t, "u1", "n1", now.Add(-3*time.Hour))
	e.seedAlert(t, "u1", "n2", now.Add(-time.Minute))

	since := now.Add(-time.Hour).Format(time.RFC3339)
	w := e.do(t, http.MethodGet, "/api/v1/alerts?user_id=u1&newer_than="+since, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts []alerts.View `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 1)
	require.Contains(t, body.Alerts[0].Label, "Note n2")
}

func TestListAlerts_NewerThanWithPaging(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	e.seedAlert(t, "u1", "n1", now.Add(-3*time.Hour))
	e.seedAlert(t, "u1", "n2", now.Add(-30*time.Minute))
	e.seedAlert(t, "u1", "n3", now.Add(-20*time.Minute))
	e.seedAlert(t, "u1", "n4", now.Add(-10*time.Minute))

	// the cutoff applies before paging, so offset walks the filtered set
	since := now.Add(-time.Hour).Format(time.RFC3339)
	w := e.do(t, http.MethodGet, "/api/v1/alerts?user_id=u1&newer_than="+since+"&limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Alerts []alerts.View `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 2)
	require.Contains(t, body.Alerts[0].Label, "Note n3")
	require.Contains(t, body.Alerts[1].Label, "Note n2")
}

func TestListAlerts_MissingUser(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkAlertSeen(t *testing.T) {
	e := newEnv(t)
	a := e.seedAlert(t, "u1", "n1", time.Now().UTC())

	w := e.do(t, http.MethodPost, "/api/v1/alerts/"+a.ID+"/seen?user_id=u1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.True(t, e.alertStore.Alerts[0].Seen)

	// Another user's alert id is a 404, not a cross-user write.
	w = e.do(t, http.MethodPost, "/api/v1/alerts/"+a.ID+"/seen?user_id=u2", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkAllAlertsSeen(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	e.seedAlert(t, "u1", "n1", now.Add(-2*time.Hour))
	e.seedAlert(t, "u1", "n2", now.Add(-time.Hour))

	w := e.do(t, http.MethodPost, "/api/v1/alerts/seen", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Marked int64 `json:"marked"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.EqualValues(t, 2, body.Marked)
	for _, a := range e.alertStore.Alerts {
		require.True(t, a.Seen)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)
}
