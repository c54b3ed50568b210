// README: Check-in handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"haven/internal/http/middleware"
	"haven/internal/modules/checkin"
	"haven/internal/types"
)

type CheckInService interface {
	CheckIn(ctx context.Context, cmd checkin.Command) (*checkin.CheckInRecord, error)
}

type CheckInLister interface {
	ListRecent(ctx context.Context, userID types.ID, limit int) ([]checkin.CheckInRecord, error)
}

type CheckInHandler struct {
	service CheckInService
	lister  CheckInLister
}

func NewCheckInHandler(service CheckInService, lister CheckInLister) *CheckInHandler {
	return &CheckInHandler{service: service, lister: lister}
}

type checkInRequest struct {
	Status      string  `json:"status" binding:"required"`
	Message     *string `json:"message"`
	IsEmergency bool    `json:"is_emergency"`
}

type checkInResponse struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Message     *string  `json:"message,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Address     *string  `json:"address,omitempty"`
	IsEmergency bool     `json:"is_emergency"`
	CreatedAtMs int64    `json:"created_at_ms"`
}

func (h *CheckInHandler) Create(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.service.CheckIn(c.Request.Context(), checkin.Command{
		UserID:      types.ID(middleware.CallerUID(c)),
		Status:      checkin.Status(req.Status),
		Message:     req.Message,
		IsEmergency: req.IsEmergency,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toCheckInResponse(*rec))
}

func (h *CheckInHandler) List(c *gin.Context) {
	limit := 20
	if n, ok := queryInt(c, "limit"); ok && n > 0 && n <= 100 {
		limit = n
	}

	recs, err := h.lister.ListRecent(c.Request.Context(), types.ID(middleware.CallerUID(c)), limit)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	out := make([]checkInResponse, len(recs))
	for i, rec := range recs {
		out[i] = toCheckInResponse(rec)
	}
	writeJSON(c, http.StatusOK, gin.H{"checkins": out})
}

func toCheckInResponse(rec checkin.CheckInRecord) checkInResponse {
	return checkInResponse{
		ID:          string(rec.ID),
		Status:      string(rec.Status),
		Message:     rec.Message,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		Address:     rec.Address,
		IsEmergency: rec.IsEmergency,
		CreatedAtMs: rec.CreatedAt.UnixMilli(),
	}
}
