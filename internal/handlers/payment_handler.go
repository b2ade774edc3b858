package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

// PaymentHandler receives payment outcome callbacks
type PaymentHandler struct {
	lifecycle *services.BookingLifecycleService
	logger    *logrus.Logger
}

func NewPaymentHandler(lifecycle *services.BookingLifecycleService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{lifecycle: lifecycle, logger: logger}
}

// ConfirmPayment handles POST /api/v1/payments/:bookingId/confirm
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	booking, err := h.lifecycle.ConfirmPayment(c.Request.Context(), c.Param("bookingId"), req.PaymentReference, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"payment_reference": req.PaymentReference,
	}).Info("Payment confirmed")

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment confirmed",
		"booking": booking,
	})
}

// FailPayment handles POST /api/v1/payments/:bookingId/fail
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req models.FailPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	booking, err := h.lifecycle.FailPayment(c.Request.Context(), c.Param("bookingId"), req.Reason, actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment failure recorded, seats released",
		"booking": booking,
	})
}
