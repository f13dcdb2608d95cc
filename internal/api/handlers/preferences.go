package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wechange-eg/cosinnus-notifications/internal/domain"
	apperrors "github.com/wechange-eg/cosinnus-notifications/internal/pkg/errors"
	"github.com/wechange-eg/cosinnus-notifications/internal/registry"
)

// Group modes exposed by the preference form. The all_* and none modes
// store a single blanket row; custom falls back to per-type rows.
const (
	groupModeCustom     = "custom"
	groupModeNone       = "none"
	groupModeAllPrefix  = "all_"
	groupModeAllInstant = "all_instant"
	groupModeAllDaily   = "all_daily"
	groupModeAllWeekly  = "all_weekly"
)

type typeView struct {
	TypeID             string `json:"type_id"`
	Label              string `json:"label"`
	Setting            string `json:"setting"`
	Explicit           bool   `json:"explicit"`
	MultiPreferenceSet string `json:"multi_preference_set,omitempty"`
}

type groupView struct {
	GroupID string     `json:"group_id"`
	Mode    string     `json:"mode"`
	Types   []typeView `json:"types"`
}

type multiPrefView struct {
	SetID    string `json:"set_id"`
	Setting  string `json:"setting"`
	Explicit bool   `json:"explicit"`
}

// GetPreferences handles GET /api/v1/preferences.
//
// Query: user_id, portal_id (both required). Returns the full settings
// form: global setting, multi-preference sets and the per-group view of
// every registered type.
func (s *Server) GetPreferences(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Query("user_id")
	portalID := c.Query("portal_id")
	if userID == "" || portalID == "" {
		_ = c.Error(apperrors.BadRequest("MISSING_PARAM", "user_id and portal_id are required"))
		return
	}

	global, err := s.prefs.GlobalSetting(ctx, userID)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_READ_FAILED", "failed to read global setting", http.StatusInternalServerError))
		return
	}

	multiViews, err := s.multiPrefViews(ctx, userID, portalID)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_READ_FAILED", "failed to read multi preferences", http.StatusInternalServerError))
		return
	}

	groupIDs, err := s.groups.MemberGroupIDs(ctx, userID, portalID)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_READ_FAILED", "failed to list member groups", http.StatusInternalServerError))
		return
	}
	rows, err := s.prefs.GroupRows(ctx, userID, groupIDs)
	if err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_READ_FAILED", "failed to read preference rows", http.StatusInternalServerError))
		return
	}
	byGroup := make(map[string]map[string]domain.Frequency)
	for _, row := range rows {
		if byGroup[row.GroupID] == nil {
			byGroup[row.GroupID] = make(map[string]domain.Frequency)
		}
		byGroup[row.GroupID][row.TypeID] = row.Setting
	}

	groupViews := make([]groupView, 0, len(groupIDs))
	for _, gid := range groupIDs {
		groupViews = append(groupViews, s.groupView(gid, byGroup[gid]))
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":           userID,
		"portal_id":         portalID,
		"global_setting":    global.String(),
		"multi_preferences": multiViews,
		"groups":            groupViews,
	})
}

func (s *Server) multiPrefViews(ctx context.Context, userID, portalID string) ([]multiPrefView, error) {
	sets := s.registry.MultiPreferenceSets()
	views := make([]multiPrefView, 0, len(sets))
	for _, setID := range sets {
		setting, explicit := domain.FreqNever, false
		if stored, ok, err := s.prefs.MultiPreference(ctx, userID, portalID, setID); err != nil {
			return nil, err
		} else if ok {
			setting, explicit = stored, true
		} else if def, ok := s.registry.MultiPreferenceDefault(setID); ok {
			setting = def
		}
		views = append(views, multiPrefView{SetID: setID, Setting: setting.String(), Explicit: explicit})
	}
	return views, nil
}

func (s *Server) groupView(groupID string, rows map[string]domain.Frequency) groupView {
	gv := groupView{GroupID: groupID, Mode: groupModeCustom}
	if _, ok := rows[registry.NoNotificationsID]; ok {
		gv.Mode = groupModeNone
	} else if f, ok := rows[registry.AllNotificationsID]; ok {
		gv.Mode = groupModeAllPrefix + f.String()
	}

	for _, typeID := range s.registry.TypeIDs() {
		desc, _ := s.registry.Get(typeID)
		tv := typeView{
			TypeID:             typeID,
			Label:              desc.Label,
			Setting:            desc.Default.String(),
			MultiPreferenceSet: desc.MultiPreferenceSet,
		}
		if f, ok := rows[typeID]; ok {
			tv.Setting = f.String()
			tv.Explicit = true
		}
		gv.Types = append(gv.Types, tv)
	}
	return gv
}

// PutGlobalSetting handles PUT /api/v1/preferences/global.
//
// Body: {"user_id": "...", "setting": "group_individual|never|instant|daily|weekly"}.
func (s *Server) PutGlobalSetting(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		Setting string `json:"setting" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_BODY", "user_id and setting are required"))
		return
	}
	setting, err := domain.ParseGlobalSetting(req.Setting)
	if err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_SETTING", err.Error()))
		return
	}
	if err := s.prefs.SetGlobalSetting(c.Request.Context(), req.UserID, setting); err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to store global setting", http.StatusInternalServerError))
		return
	}
	c.Status(http.StatusNoContent)
}

// PutGroupMode handles PUT /api/v1/preferences/group.
//
// Body: {"user_id": "...", "group_id": "...", "mode": "all_<freq>|none|custom"}.
// Blanket modes clear the per-type rows; custom only removes the blanket
// rows so previously stored per-type rows take effect again.
func (s *Server) PutGroupMode(c *gin.Context) {
	ctx := c.Request.Context()
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		GroupID string `json:"group_id" binding:"required"`
		Mode    string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_BODY", "user_id, group_id and mode are required"))
		return
	}

	switch req.Mode {
	case groupModeCustom:
		if err := s.prefs.DeleteGroupPreference(ctx, req.UserID, req.GroupID, registry.AllNotificationsID); err != nil {
			_ = c.Error(apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to clear blanket row", http.StatusInternalServerError))
			return
		}
		if err := s.prefs.DeleteGroupPreference(ctx, req.UserID, req.GroupID, registry.NoNotificationsID); err != nil {
			_ = c.Error(apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to clear blanket row", http.StatusInternalServerError))
			return
		}

	case groupModeNone:
		if err := s.setBlanket(ctx, req.UserID, req.GroupID, registry.NoNotificationsID, domain.FreqNever); err != nil {
			_ = c.Error(err)
			return
		}

	case groupModeAllInstant, groupModeAllDaily, groupModeAllWeekly:
		freq, err := domain.ParseFrequency(strings.TrimPrefix(req.Mode, groupModeAllPrefix))
		if err != nil {
			_ = c.Error(apperrors.BadRequest("BAD_MODE", err.Error()))
			return
		}
		if err := s.setBlanket(ctx, req.UserID, req.GroupID, registry.AllNotificationsID, freq); err != nil {
			_ = c.Error(err)
			return
		}

	default:
		_ = c.Error(apperrors.BadRequest("BAD_MODE", "mode must be all_<frequency>, none or custom"))
		return
	}
	c.Status(http.StatusNoContent)
}

// setBlanket replaces every row of the group with a single blanket row.
func (s *Server) setBlanket(ctx context.Context, userID, groupID, blanketID string, freq domain.Frequency) error {
	if err := s.prefs.DeleteGroupPreferences(ctx, userID, groupID); err != nil {
		return apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to clear preference rows", http.StatusInternalServerError)
	}
	if err := s.prefs.SetGroupPreference(ctx, userID, groupID, blanketID, freq); err != nil {
		return apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to store blanket row", http.StatusInternalServerError)
	}
	return nil
}

// PutTypeSetting handles PUT /api/v1/preferences/type.
//
// Body: {"user_id": "...", "group_id": "...", "type_id": "...", "setting": "..."}.
func (s *Server) PutTypeSetting(c *gin.Context) {
	var req struct {
		UserID  string `json:"user_id" binding:"required"`
		GroupID string `json:"group_id" binding:"required"`
		TypeID  string `json:"type_id" binding:"required"`
		Setting string `json:"setting" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_BODY", "user_id, group_id, type_id and setting are required"))
		return
	}
	if _, ok := s.registry.Get(req.TypeID); !ok {
		_ = c.Error(apperrors.BadRequest("UNKNOWN_TYPE", "unknown notification type "+req.TypeID))
		return
	}
	setting, err := domain.ParseFrequency(req.Setting)
	if err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_SETTING", err.Error()))
		return
	}
	if err := s.prefs.SetGroupPreference(c.Request.Context(), req.UserID, req.GroupID, req.TypeID, setting); err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to store preference row", http.StatusInternalServerError))
		return
	}
	c.Status(http.StatusNoContent)
}

// PutMultiPreference handles PUT /api/v1/preferences/multi.
//
// Body: {"user_id": "...", "portal_id": "...", "set_id": "...", "setting": "..."}.
func (s *Server) PutMultiPreference(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		PortalID string `json:"portal_id" binding:"required"`
		SetID    string `json:"set_id" binding:"required"`
		Setting  string `json:"setting" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_BODY", "user_id, portal_id, set_id and setting are required"))
		return
	}
	if len(s.registry.MultiPreferenceMembers(req.SetID)) == 0 {
		_ = c.Error(apperrors.BadRequest("UNKNOWN_SET", "unknown multi-preference set "+req.SetID))
		return
	}
	setting, err := domain.ParseFrequency(req.Setting)
	if err != nil {
		_ = c.Error(apperrors.BadRequest("BAD_SETTING", err.Error()))
		return
	}
	if err := s.prefs.SetMultiPreference(c.Request.Context(), req.UserID, req.PortalID, req.SetID, setting); err != nil {
		_ = c.Error(apperrors.Wrap(err, "PREFS_WRITE_FAILED", "failed to store multi preference", http.StatusInternalServerError))
		return
	}
	c.Status(http.StatusNoContent)
}
