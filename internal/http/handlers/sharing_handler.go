// README: Sharing settings and device token handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"haven/internal/http/middleware"
	"haven/internal/types"
)

type SharingService interface {
	SetSharing(ctx context.Context, userID types.ID, enabled bool, intervalMinutes int) error
}

type TokenRegistrar interface {
	Register(ctx context.Context, userID types.ID, token string) error
}

type SharingHandler struct {
	sharing SharingService
	tokens  TokenRegistrar
}

func NewSharingHandler(sharing SharingService, tokens TokenRegistrar) *SharingHandler {
	return &SharingHandler{sharing: sharing, tokens: tokens}
}

type sharingRequest struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"interval_minutes"`
}

func (h *SharingHandler) Put(c *gin.Context) {
	var req sharingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.sharing.SetSharing(c.Request.Context(), types.ID(middleware.CallerUID(c)), req.Enabled, req.IntervalMinutes)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sharing": req.Enabled})
}

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *SharingHandler) RegisterToken(c *gin.Context) {
	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.tokens.Register(c.Request.Context(), types.ID(middleware.CallerUID(c)), req.Token)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "registered"})
}
