package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

type BusHandler struct {
	buses        *services.BusService
	availability *services.AvailabilityService
	logger       *logrus.Logger
}

func NewBusHandler(buses *services.BusService, availability *services.AvailabilityService, logger *logrus.Logger) *BusHandler {
	return &BusHandler{
		buses:        buses,
		availability: availability,
		logger:       logger,
	}
}

// GetAvailableSeats returns the seat layout and held seats for a travel date
// GET /api/v1/buses/:busId/seats?date=YYYY-MM-DD
func (h *BusHandler) GetAvailableSeats(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "date query parameter is required (YYYY-MM-DD)",
			"code":    "MISSING_DATE",
		})
		return
	}

	resp, err := h.availability.GetAvailableSeats(c.Request.Context(), c.Param("busId"), date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBookingStatus reports whether the bus is accepting bookings right now
// GET /api/v1/buses/:busId/booking-status
func (h *BusHandler) GetBookingStatus(c *gin.Context) {
	status, err := h.buses.GetBookingStatus(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// CreateBus registers a bus
// POST /api/v1/admin/buses
func (h *BusHandler) CreateBus(c *gin.Context) {
	var req models.CreateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	bus, err := h.buses.CreateBus(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"bus_id":     bus.ID,
		"bus_number": bus.BusNumber,
	}).Info("Bus created")

	c.JSON(http.StatusCreated, bus)
}

// UpdateBus applies a partial update
// PUT /api/v1/admin/buses/:busId
func (h *BusHandler) UpdateBus(c *gin.Context) {
	var req models.UpdateBusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	bus, err := h.buses.UpdateBus(c.Request.Context(), c.Param("busId"), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, bus)
}

// GetBus GET /api/v1/admin/buses/:busId
func (h *BusHandler) GetBus(c *gin.Context) {
	bus, err := h.buses.GetBus(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, bus)
}

// ListBuses GET /api/v1/admin/buses?active_only=true
func (h *BusHandler) ListBuses(c *gin.Context) {
	activeOnly := c.Query("active_only") == "true"

	buses, err := h.buses.ListBuses(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"buses": buses,
		"count": len(buses),
	})
}
