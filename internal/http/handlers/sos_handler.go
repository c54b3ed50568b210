// README: Emergency (SOS) handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"haven/internal/http/middleware"
	"haven/internal/modules/sos"
	"haven/internal/types"
)

type SOSService interface {
	Start(ctx context.Context, cmd sos.StartCommand) error
	Stop(userID types.ID) error
}

// ContactRegistrar records who gets alerted when this user raises an
// emergency.
type ContactRegistrar interface {
	AddContact(ctx context.Context, userID, contactID types.ID) error
}

type SOSHandler struct {
	sos      SOSService
	contacts ContactRegistrar
}

func NewSOSHandler(svc SOSService, contacts ContactRegistrar) *SOSHandler {
	return &SOSHandler{sos: svc, contacts: contacts}
}

type sosStartRequest struct {
	// Resume tells the server the device believes an emergency was
	// already running before a restart.
	Resume bool `json:"resume"`
}

func (h *SOSHandler) Start(c *gin.Context) {
	var req sosStartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	err := h.sos.Start(c.Request.Context(), sos.StartCommand{
		UserID: types.ID(middleware.CallerUID(c)),
		Resume: req.Resume,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "emergency_active"})
}

type addContactRequest struct {
	ContactUserID string `json:"contact_user_id" binding:"required"`
}

func (h *SOSHandler) AddContact(c *gin.Context) {
	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := types.ID(middleware.CallerUID(c))
	if string(userID) == req.ContactUserID {
		writeError(c, http.StatusBadRequest, "cannot add yourself as an emergency contact")
		return
	}

	if err := h.contacts.AddContact(c.Request.Context(), userID, types.ID(req.ContactUserID)); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"status": "contact_added"})
}

func (h *SOSHandler) Stop(c *gin.Context) {
	if err := h.sos.Stop(types.ID(middleware.CallerUID(c))); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "emergency_ended"})
}
