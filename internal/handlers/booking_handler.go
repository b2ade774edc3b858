package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

// BookingHandler handles passenger and agent booking requests
type BookingHandler struct {
	reservations *services.ReservationService
	lifecycle    *services.BookingLifecycleService
	now          func() time.Time
	logger       *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. now is the clock used for
// the cancellation cutoff; nil means time.Now.
func NewBookingHandler(
	reservations *services.ReservationService,
	lifecycle *services.BookingLifecycleService,
	now func() time.Time,
	logger *logrus.Logger,
) *BookingHandler {
	if now == nil {
		now = time.Now
	}
	return &BookingHandler{
		reservations: reservations,
		lifecycle:    lifecycle,
		now:          now,
		logger:       logger,
	}
}

// Reserve handles POST /api/v1/bookings
func (h *BookingHandler) Reserve(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.reservations.Reserve(c.Request.Context(), &req, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Seats reserved. Complete payment before the hold expires.",
		"booking": booking,
	})
}

// GetBooking handles GET /api/v1/bookings/:bookingId
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	booking, err := h.lifecycle.GetBooking(c.Request.Context(), c.Param("bookingId"), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking handles POST /api/v1/bookings/:bookingId/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	// the body is optional
	var req models.CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	booking, err := h.lifecycle.CancelBooking(c.Request.Context(), c.Param("bookingId"), actor, h.now(), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Booking cancelled",
		"booking":       booking,
		"refund_amount": booking.RefundAmount,
	})
}
