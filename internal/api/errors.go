package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/apperr"
	"github.com/hackgods/therapy-scheduling/internal/appointment"
)

// writeServiceError maps a service error to a status and error code.
// Unkinded errors are logged and reported as internal without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", apperr.ReasonOf(err))
	case errors.Is(err, appointment.ErrOutsideAvailability):
		writeError(w, http.StatusConflict, "outside_availability", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", apperr.ReasonOf(err))
	case errors.Is(err, apperr.ErrTransient):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "transient_error", apperr.ReasonOf(err))
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
