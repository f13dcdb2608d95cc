package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wechange-eg/cosinnus-notifications/internal/alerts"
	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
	"github.com/wechange-eg/cosinnus-notifications/internal/pkg/logger"
)

const (
	defaultAlertPageSize = 20
	maxAlertPageSize     = 100
)

// ListAlerts handles GET /api/v1/alerts.
//
// Query: user_id (required), limit, offset, newer_than (RFC 3339). The
// widget polls with newer_than to cheaply detect fresh activity.
func (s *Server) ListAlerts(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(apperrors.BadRequest("MISSING_USER_ID", "user_id is required"))
		return
	}

	limit := intQuery(c, "limit", defaultAlertPageSize)
	if limit <= 0 || limit > maxAlertPageSize {
		limit = defaultAlertPageSize
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var since time.Time
	if raw := c.Query("newer_than"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = c.Error(apperrors.BadRequest("BAD_TIMESTAMP", "newer_than must be RFC 3339"))
			return
		}
		since = ts
	}

	list, err := s.alerts.ListForUser(c.Request.Context(), userID, since, limit, offset)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "ALERT_LIST_FAILED", "failed to list alerts", http.StatusInternalServerError))
		return
	}

	views := make([]alerts.View, 0, len(list))
	unseen := 0
	for _, a := range list {
		views = append(views, alerts.Serialize(a))
		if !a.Seen {
			unseen++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":       views,
		"unseen_count": unseen,
		"polled_at":    time.Now().UTC().Format(time.RFC3339),
	})
}

// MarkAlertSeen handles POST /api/v1/alerts/:id/seen.
func (s *Server) MarkAlertSeen(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		_ = c.Error(apperrors.BadRequest("MISSING_USER_ID", "user_id is required"))
		return
	}
	alertID := c.Param("id")

	if err := s.alerts.MarkSeen(c.Request.Context(), userID, alertID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllAlertsSeen handles POST /api/v1/alerts/seen.
//
// Body: {"user_id": "...", "before": "RFC 3339"}. before defaults to now,
// so alerts arriving while the widget is open stay unseen.
func (s *Server) MarkAllAlertsSeen(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Before string `json:"before"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_BODY", "user_id is required"))
		return
	}

	before := time.Now().UTC()
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			_ = c.Error(apperrors.BadRequest("BAD_TIMESTAMP", "before must be RFC 3339"))
			return
		}
		before = t
	}

	n, err := s.alerts.MarkSeenBefore(c.Request.Context(), req.UserID, before)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "ALERT_SEEN_FAILED", "failed to mark alerts seen", http.StatusInternalServerError))
		return
	}

	logger.Debug("marked alerts seen",
		zap.String("user_id", req.UserID),
		zap.Int64("count", n),
	)
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
