// Package handlers maps HTTP requests onto the module services.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/location"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// respondError translates module errors into HTTP statuses. State conflicts
// are 409 so callers can show a precise message without retrying.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrValidation),
		errors.Is(err, location.ErrInvalidCoordinate),
		errors.Is(err, pricing.ErrZeroDistance):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, location.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrRegistrationClosed),
		errors.Is(err, ride.ErrRideFull),
		errors.Is(err, ride.ErrAlreadyJoined),
		errors.Is(err, ride.ErrInvalidTransition):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrUnauthorized):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrRouteUnavailable):
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// callerID reads the authenticated participant id. Authentication itself
// happens upstream of this service; the gateway forwards the identity.
func callerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
