package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wechange-eg/cosinnus-notifications/internal/api/handlers"
	"github.com/wechange-eg/cosinnus-notifications/internal/config"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
	"github.com/wechange-eg/cosinnus-notifications/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	testutil.InitLogger()
	m.Run()
}

func TestBuildRegistry(t *testing.T) {
	reg, err := BuildRegistry(domain.FreqDaily)
	require.NoError(t, err)

	// Every builtin type resolves and carries a namespaced id.
	ids := reg.TypeIDs()
	require.NotEmpty(t, ids)
	require.Contains(t, ids, "note.note_created")
	require.Contains(t, ids, "event.event_changed")
	require.Contains(t, ids, "group.invited")

	// The followed-object set is populated and carries the configured
	// default.
	require.NotEmpty(t, reg.MultiPreferenceMembers(registry.FollowedObjectSet))
	def, ok := reg.MultiPreferenceDefault(registry.FollowedObjectSet)
	require.True(t, ok)
	require.Equal(t, domain.FreqDaily, def)
}

func TestBuildRegistry_SupersessionWired(t *testing.T) {
	reg, err := BuildRegistry(domain.FreqDaily)
	require.NoError(t, err)
	require.Contains(t, reg.SupersedingSets("event_created"), registry.FollowedObjectSet)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	reg, err := BuildRegistry(domain.FreqDaily)
	require.NoError(t, err)

	server := handlers.NewServer(handlers.ServerDeps{
		Registry: reg,
		Alerts:   &testutil.MemAlertStore{},
		Prefs:    testutil.NewMemPrefStore(),
		Groups:   testutil.NewDirectory(),
	})
	cfg := &config.Config{}
	cfg.Server.AllowedOrigins = []string{"*"}
	return newRouter(cfg, server)
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/alerts", nil)
	req.Header.Set("Origin", "https://portal.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}
