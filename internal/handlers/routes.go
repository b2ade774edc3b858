package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/middleware"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/pkg/jwt"
)

// Router bundles the handlers mounted under /api/v1
type Router struct {
	Bookings    *BookingHandler
	Payments    *PaymentHandler
	Buses       *BusHandler
	Admin       *AdminHandler
	JWT         *jwt.Service
	RateLimiter *middleware.RateLimiter // nil disables limiting
	Logger      *logrus.Logger
}

// Register mounts the API routes on v1
func (r *Router) Register(v1 *gin.RouterGroup) {
	auth := middleware.AuthMiddleware(r.JWT, r.Logger)

	// Seat maps and booking status are public
	buses := v1.Group("/buses")
	{
		buses.GET("/:busId/seats", r.Buses.GetAvailableSeats)
		buses.GET("/:busId/booking-status", r.Buses.GetBookingStatus)
	}

	bookings := v1.Group("/bookings")
	bookings.Use(auth)
	{
		reserve := []gin.HandlerFunc{middleware.RequireRole(models.RoleCustomer, models.RoleAgent)}
		if r.RateLimiter != nil {
			reserve = append(reserve, r.RateLimiter.Middleware())
		}
		reserve = append(reserve, r.Bookings.Reserve)

		bookings.POST("", reserve...)
		bookings.GET("/:bookingId", r.Bookings.GetBooking)
		bookings.POST("/:bookingId/cancel", r.Bookings.CancelBooking)
	}

	payments := v1.Group("/payments")
	payments.Use(auth, middleware.RequireRole(models.RoleSystem, models.RoleAdmin))
	{
		payments.POST("/:bookingId/confirm", r.Payments.ConfirmPayment)
		payments.POST("/:bookingId/fail", r.Payments.FailPayment)
	}

	admin := v1.Group("/admin")
	admin.Use(auth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/buses", r.Buses.ListBuses)
		admin.POST("/buses", r.Buses.CreateBus)
		admin.GET("/buses/:busId", r.Buses.GetBus)
		admin.PUT("/buses/:busId", r.Buses.UpdateBus)

		admin.GET("/bookings", r.Admin.ListBookings)
		admin.POST("/bookings/expire", r.Admin.ExpireNow)
		admin.GET("/jobs", r.Admin.SweepStatus)
	}
}
