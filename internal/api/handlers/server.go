// Package handlers implements the engine's HTTP surface: the alert read
// API consumed by the in-app notification widget and the preference API
// behind the user's notification settings form.
//
// Routes are registered manually on gin; identity comes from the
// embedding platform as an explicit user_id parameter, authentication
// happens upstream.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	"github.com/wechange-eg/cosinnus-notifications/internal/preferences"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// Server holds the handlers' dependencies.
type Server struct {
	registry *registry.Registry
	alerts   alerts.Store
	prefs    preferences.Store
	groups   domain.GroupDirectory
	pool     *pgxpool.Pool
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Registry *registry.Registry
	Alerts   alerts.Store
	Prefs    preferences.Store
	Groups   domain.GroupDirectory

	// Pool is optional; without it the readiness probe skips the
	// database check.
	Pool *pgxpool.Pool
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		registry: deps.Registry,
		alerts:   deps.Alerts,
		prefs:    deps.Prefs,
		groups:   deps.Groups,
		pool:     deps.Pool,
	}
}

// Register attaches all routes to the router.
func (s *Server) Register(router *gin.Engine) {
	router.GET("/healthz", s.Healthz)

	v1 := router.Group("/api/v1")
	v1.GET("/alerts", s.ListAlerts)
	v1.POST("/alerts/seen", s.MarkAllAlertsSeen)
	v1.POST("/alerts/:id/seen", s.MarkAlertSeen)

	v1.GET("/preferences", s.GetPreferences)
	v1.PUT("/preferences/global", s.PutGlobalSetting)
	v1.PUT("/preferences/group", s.PutGroupMode)
	v1.PUT("/preferences/type", s.PutTypeSetting)
	v1.PUT("/preferences/multi", s.PutMultiPreference)
}
