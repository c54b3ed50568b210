// README: Presence and connection handlers.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"haven/internal/http/middleware"
	"haven/internal/modules/presence"
	"haven/internal/modules/tracking"
	"haven/internal/types"
)

// PresenceLister reads the presence projection for a family group.
type PresenceLister interface {
	ListGroupPresence(ctx context.Context, groupID types.ID) ([]tracking.PresenceRecord, error)
}

// ConnectionDirectory manages the caller's connection edges.
type ConnectionDirectory interface {
	CreateConnection(ctx context.Context, ownerID, subjectID types.ID) error
	EdgesOf(ctx context.Context, ownerID types.ID) ([]presence.ConnectionRecord, error)
}

type PresenceHandler struct {
	presence    PresenceLister
	connections ConnectionDirectory
}

func NewPresenceHandler(lister PresenceLister, connections ConnectionDirectory) *PresenceHandler {
	return &PresenceHandler{presence: lister, connections: connections}
}

type presenceItem struct {
	UserID       string   `json:"user_id"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Address      *string  `json:"address,omitempty"`
	BatteryLevel *int     `json:"battery_level,omitempty"`
	Online       bool     `json:"online"`
	UpdatedAtMs  *int64   `json:"updated_at_ms,omitempty"`
}

// GroupPresence serves what the family group sees right now. Online is
// derived from sharing plus update freshness, not the stored flag.
func (h *PresenceHandler) GroupPresence(c *gin.Context) {
	groupID := c.Query("group_id")
	if groupID == "" {
		writeError(c, http.StatusBadRequest, "missing group_id")
		return
	}

	recs, err := h.presence.ListGroupPresence(c.Request.Context(), types.ID(groupID))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	now := time.Now()
	items := make([]presenceItem, len(recs))
	for i, rec := range recs {
		items[i] = presenceItem{
			UserID:       string(rec.UserID),
			Latitude:     rec.Latitude,
			Longitude:    rec.Longitude,
			Address:      rec.Address,
			BatteryLevel: rec.BatteryLevel,
			Online:       rec.Online(now),
		}
		if rec.UpdatedAt != nil {
			ms := rec.UpdatedAt.UnixMilli()
			items[i].UpdatedAtMs = &ms
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"members": items})
}

type createConnectionRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

func (h *PresenceHandler) CreateConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	ownerID := types.ID(middleware.CallerUID(c))
	if string(ownerID) == req.SubjectID {
		writeError(c, http.StatusBadRequest, "cannot connect to yourself")
		return
	}

	if err := h.connections.CreateConnection(c.Request.Context(), ownerID, types.ID(req.SubjectID)); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"status": "connected"})
}

type connectionItem struct {
	SubjectID    string   `json:"subject_id"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Address      *string  `json:"address,omitempty"`
	BatteryLevel *int     `json:"battery_level,omitempty"`
	Sharing      bool     `json:"sharing"`
	UpdatedAtMs  *int64   `json:"updated_at_ms,omitempty"`
}

func (h *PresenceHandler) ListConnections(c *gin.Context) {
	recs, err := h.connections.EdgesOf(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	items := make([]connectionItem, len(recs))
	for i, rec := range recs {
		items[i] = connectionItem{
			SubjectID:    string(rec.SubjectID),
			Latitude:     rec.Latitude,
			Longitude:    rec.Longitude,
			Address:      rec.Address,
			BatteryLevel: rec.BatteryLevel,
			Sharing:      rec.ShareLocation,
		}
		if rec.UpdatedAt != nil {
			ms := rec.UpdatedAt.UnixMilli()
			items[i].UpdatedAtMs = &ms
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"connections": items})
}
