package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/middleware"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// busyRetryAfterSeconds is sent with 503 responses when a seat map is locked
const busyRetryAfterSeconds = 1

// respondError maps an engine error to its HTTP status and JSON body.
// Unrecognised errors are logged and reported as 500 without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	body := gin.H{"message": publicMessage(err)}
	status := http.StatusInternalServerError

	var (
		windowErr   *models.WindowClosedError
		conflictErr *models.SeatConflictError
		cutoffErr   *models.CancellationWindowClosedError
	)

	switch {
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
		body["error"] = "seat_conflict"
		body["code"] = "SEAT_CONFLICT"
		body["unavailable_seats"] = conflictErr.Seats
	case errors.As(err, &windowErr):
		status = http.StatusForbidden
		body["error"] = "booking_window_closed"
		body["code"] = "WINDOW_CLOSED"
		body["open_time"] = windowErr.OpenTime
		body["close_time"] = windowErr.CloseTime
		body["is_active"] = windowErr.IsActive
	case errors.As(err, &cutoffErr):
		status = http.StatusUnprocessableEntity
		body["error"] = "cancellation_window_closed"
		body["code"] = "CANCELLATION_WINDOW_CLOSED"
		body["departure_time"] = cutoffErr.Departure
		body["cutoff_minutes"] = int(cutoffErr.Cutoff.Minutes())
	case errors.Is(err, models.ErrSeatConflict):
		status = http.StatusConflict
		body["error"] = "seat_conflict"
		body["code"] = "SEAT_CONFLICT"
	case errors.Is(err, models.ErrWindowClosed):
		status = http.StatusForbidden
		body["error"] = "booking_window_closed"
		body["code"] = "WINDOW_CLOSED"
	case errors.Is(err, models.ErrCancellationWindowClosed):
		status = http.StatusUnprocessableEntity
		body["error"] = "cancellation_window_closed"
		body["code"] = "CANCELLATION_WINDOW_CLOSED"
	case errors.Is(err, models.ErrBusy):
		status = http.StatusServiceUnavailable
		body["error"] = "busy"
		body["code"] = "SEAT_MAP_BUSY"
		c.Header("Retry-After", fmt.Sprintf("%d", busyRetryAfterSeconds))
	case errors.Is(err, models.ErrInvalidSeatSelection):
		status = http.StatusBadRequest
		body["error"] = "invalid_seat_selection"
		body["code"] = "INVALID_SEAT_SELECTION"
	case errors.Is(err, models.ErrInvalidRequest):
		status = http.StatusBadRequest
		body["error"] = "invalid_request"
		body["code"] = "INVALID_REQUEST"
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
		body["error"] = "forbidden"
		body["code"] = "FORBIDDEN"
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		body["error"] = "not_found"
		body["code"] = "NOT_FOUND"
	case errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
		body["error"] = "invalid_transition"
		body["code"] = "INVALID_STATUS_TRANSITION"
	case errors.Is(err, models.ErrSeatConfigurationLocked):
		status = http.StatusConflict
		body["error"] = "seat_configuration_locked"
		body["code"] = "SEAT_CONFIGURATION_LOCKED"
	case errors.Is(err, models.ErrInvalidConfiguration):
		status = http.StatusUnprocessableEntity
		body["error"] = "invalid_configuration"
		body["code"] = "INVALID_CONFIGURATION"
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error("Unhandled error")
		body["error"] = "internal_error"
		body["code"] = "INTERNAL_ERROR"
		body["message"] = "An unexpected error occurred"
	}

	c.JSON(status, body)
}

// publicMessage capitalises the error text for display
func publicMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// respondBindError reports a malformed request body
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": "Invalid request body",
		"details": err.Error(),
		"code":    "INVALID_REQUEST_BODY",
	})
}

// requireActor returns the authenticated caller or writes a 401
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "User context not found",
			"code":    "MISSING_USER_CONTEXT",
		})
		return models.Actor{}, false
	}
	return actor, true
}
