// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"haven/internal/modules/tracking"
	"haven/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrBadRequest), errors.Is(err, types.ErrInvalidCoordinate):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracking.ErrNotFound), errors.Is(err, tracking.ErrNoSession):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, tracking.ErrPermissionDenied):
		writeError(c, http.StatusForbidden, "location permission denied; enable it in device settings")
	case errors.Is(err, tracking.ErrServicesDisabled):
		writeError(c, http.StatusConflict, "location services are off; turn them on in device settings")
	case errors.Is(err, tracking.ErrTimeout):
		writeError(c, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
