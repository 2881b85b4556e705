package controlplane

import (
	"errors"
	"net/http"

	"github.com/fentz26/hivemind/internal/models"
)

// ErrInvalidRequest is returned for malformed request bodies and parameters.
var ErrInvalidRequest = errors.New("invalid request")

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidPriority),
		errors.Is(err, models.ErrInvalidMode),
		errors.Is(err, models.ErrInvalidTask),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
