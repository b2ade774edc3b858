package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

const maxAdminPageSize = 200

// AdminHandler handles back-office booking operations
type AdminHandler struct {
	lifecycle *services.BookingLifecycleService
	cron      *services.CronService
	logger    *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(lifecycle *services.BookingLifecycleService, cron *services.CronService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		lifecycle: lifecycle,
		cron:      cron,
		logger:    logger,
	}
}

// ListBookings handles GET /api/v1/admin/bookings
// Optional filters: bus_id, travel_date, status, creator_role, created_by,
// limit (default 50), offset.
func (h *AdminHandler) ListBookings(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxAdminPageSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "limit must be between 1 and 200",
			"code":    "INVALID_LIMIT",
		})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "offset must be a non-negative integer",
			"code":    "INVALID_OFFSET",
		})
		return
	}

	filter := models.BookingFilter{
		BusID:       c.Query("bus_id"),
		TravelDate:  c.Query("travel_date"),
		Status:      models.BookingStatus(c.Query("status")),
		CreatorRole: models.Role(c.Query("creator_role")),
		CreatedBy:   c.Query("created_by"),
		Limit:       limit,
		Offset:      offset,
	}

	switch filter.Status {
	case "", models.BookingStatusPending, models.BookingStatusConfirmed, models.BookingStatusCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status must be one of pending, confirmed, cancelled",
			"code":    "INVALID_STATUS",
		})
		return
	}
	if filter.CreatorRole != "" && !filter.CreatorRole.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "creator_role is not a known role",
			"code":    "INVALID_ROLE",
		})
		return
	}

	bookings, err := h.lifecycle.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

// ExpireNow handles POST /api/v1/admin/bookings/expire
func (h *AdminHandler) ExpireNow(c *gin.Context) {
	expired, err := h.cron.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("expired", expired).Info("Manual expiry sweep completed")

	c.JSON(http.StatusOK, gin.H{
		"message": "Expiry sweep completed",
		"expired": expired,
	})
}

// SweepStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) SweepStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}
