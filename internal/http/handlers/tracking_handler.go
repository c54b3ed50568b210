// README: Tracking handlers: session lifecycle, fix ingest, snapshots.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"haven/internal/http/middleware"
	"haven/internal/modules/tracking"
	"haven/internal/types"
)

// TrackingService is the slice of the tracking core the handlers use.
type TrackingService interface {
	Start(ctx context.Context, cmd tracking.StartCommand) error
	Stop(ctx context.Context, userID types.ID) error
	Snapshot(ctx context.Context, userID types.ID, profile tracking.AccuracyProfile, timeout, maxAge time.Duration) (*tracking.Fix, error)
}

type TrackingHandler struct {
	tracking TrackingService
	feed     *tracking.DeviceFeed
}

func NewTrackingHandler(svc TrackingService, feed *tracking.DeviceFeed) *TrackingHandler {
	return &TrackingHandler{tracking: svc, feed: feed}
}

type startTrackingRequest struct {
	GroupID                      string `json:"group_id" binding:"required"`
	ShareLocation                bool   `json:"share_location"`
	HistoryWriteFrequencyMinutes int    `json:"history_write_frequency_minutes"`
}

func (h *TrackingHandler) Start(c *gin.Context) {
	var req startTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.tracking.Start(c.Request.Context(), tracking.StartCommand{
		UserID:                       types.ID(middleware.CallerUID(c)),
		GroupID:                      types.ID(req.GroupID),
		ShareLocation:                req.ShareLocation,
		HistoryWriteFrequencyMinutes: req.HistoryWriteFrequencyMinutes,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "tracking"})
}

func (h *TrackingHandler) Stop(c *gin.Context) {
	err := h.tracking.Stop(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "stopped"})
}

type pushFixRequest struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	BatteryLevel *int    `json:"battery_level"`
	RecordedAtMs int64   `json:"recorded_at_ms"`
	// Status lets a device report lost permission or disabled services
	// instead of a position.
	Status string `json:"status"`
}

// PushFix ingests one raw device fix; this is the push trigger for the
// caller's own session.
func (h *TrackingHandler) PushFix(c *gin.Context) {
	var req pushFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := types.ID(middleware.CallerUID(c))

	switch tracking.DeviceStatus(req.Status) {
	case tracking.DevicePermissionDenied, tracking.DeviceServicesDisabled:
		h.feed.ReportStatus(userID, tracking.DeviceStatus(req.Status))
		writeJSON(c, http.StatusOK, gin.H{"status": "recorded"})
		return
	}

	pos, err := types.NewPosition(req.Latitude, req.Longitude)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	at := time.Now()
	if req.RecordedAtMs > 0 {
		at = time.UnixMilli(req.RecordedAtMs)
	}
	battery := types.BatteryLevel(-1)
	if req.BatteryLevel != nil {
		battery = types.BatteryLevel(*req.BatteryLevel)
	}

	h.feed.Push(userID, tracking.Fix{Position: pos, Battery: battery, At: at})
	writeJSON(c, http.StatusOK, gin.H{"status": "accepted"})
}

type snapshotResponse struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      *string `json:"address,omitempty"`
	BatteryLevel *int    `json:"battery_level,omitempty"`
	RecordedAtMs int64   `json:"recorded_at_ms"`
}

// Snapshot serves the fast-path location read for the caller.
func (h *TrackingHandler) Snapshot(c *gin.Context) {
	userID := types.ID(middleware.CallerUID(c))

	timeout := 2 * time.Second
	if ms, ok := queryInt(c, "timeout_ms"); ok {
		timeout = time.Duration(ms) * time.Millisecond
	}
	maxAge := 10 * time.Minute
	if ms, ok := queryInt(c, "max_age_ms"); ok {
		maxAge = time.Duration(ms) * time.Millisecond
	}
	profile := tracking.AccuracyBalanced
	if p := c.Query("profile"); p != "" {
		profile = tracking.AccuracyProfile(p)
	}

	fix, err := h.tracking.Snapshot(c.Request.Context(), userID, profile, timeout, maxAge)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	resp := snapshotResponse{
		Latitude:     fix.Position.Lat,
		Longitude:    fix.Position.Lng,
		Address:      fix.Position.Address,
		RecordedAtMs: fix.At.UnixMilli(),
	}
	if fix.Battery.Known() {
		b := int(fix.Battery)
		resp.BatteryLevel = &b
	}
	writeJSON(c, http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, false
	}
	var n int
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}
