package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/cache"
	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/events"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// EngineConfig holds the booking rules shared by the reservation and
// lifecycle services
type EngineConfig struct {
	Location               *time.Location
	PendingTTL             time.Duration
	LockTimeout            time.Duration
	LockRetryBackoff       time.Duration
	CancellationCutoff     time.Duration
	AgentWindowOverride    bool
	AgentCommissionPercent int64
	CancellationFeePercent int64
	MaxSeatsPerBooking     int
	ExpiryBatchSize        int

	// Now is the engine clock; tests replace it
	Now func() time.Time
	// NewReference generates booking references; nil uses
	// models.GenerateBookingReference
	NewReference func(local time.Time) string
}

// DefaultEngineConfig returns the production defaults
func DefaultEngineConfig() EngineConfig {
	loc, err := time.LoadLocation("Asia/Colombo")
	if err != nil {
		loc = time.UTC
	}
	return EngineConfig{
		Location:               loc,
		PendingTTL:             15 * time.Minute,
		LockTimeout:            5 * time.Second,
		LockRetryBackoff:       150 * time.Millisecond,
		CancellationCutoff:     2 * time.Hour,
		AgentWindowOverride:    false,
		AgentCommissionPercent: 10,
		CancellationFeePercent: 0,
		MaxSeatsPerBooking:     10,
		ExpiryBatchSize:        100,
		Now:                    time.Now,
	}
}

// EngineConfigFromPolicy converts the loaded booking policy
func EngineConfigFromPolicy(p config.BookingPolicy) (EngineConfig, error) {
	loc, err := p.Location()
	if err != nil {
		return EngineConfig{}, err
	}
	return EngineConfig{
		Location:               loc,
		PendingTTL:             p.PendingTTL,
		LockTimeout:            p.SeatLockTimeout,
		LockRetryBackoff:       p.SeatLockRetryBackoff,
		CancellationCutoff:     p.CancellationCutoff,
		AgentWindowOverride:    p.AgentWindowOverride,
		AgentCommissionPercent: p.AgentCommissionPercent,
		CancellationFeePercent: p.CancellationFeePercent,
		MaxSeatsPerBooking:     p.MaxSeatsPerBooking,
		ExpiryBatchSize:        p.ExpiryBatchSize,
		Now:                    time.Now,
	}, nil
}

func (c EngineConfig) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// reference generates a booking reference dated in the operating timezone
func (c EngineConfig) reference(now time.Time) string {
	local := now.In(c.Location)
	if c.NewReference == nil {
		return models.GenerateBookingReference(local)
	}
	return c.NewReference(local)
}

// today returns the current calendar date in the operating timezone
func (c EngineConfig) today(now time.Time) time.Time {
	local := now.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
}

// BookingNotifier runs the side effects of a committed booking change. None
// of them can undo the commit, so every failure is logged and dropped.
type BookingNotifier struct {
	cache     cache.AvailabilityCache
	publisher events.Publisher
	audit     *AuditService
	logger    *logrus.Logger
}

// NewBookingNotifier creates a BookingNotifier. A nil cache or publisher falls
// back to the no-op cache and the log publisher.
func NewBookingNotifier(c cache.AvailabilityCache, p events.Publisher, audit *AuditService, logger *logrus.Logger) *BookingNotifier {
	if c == nil {
		c = cache.NopAvailabilityCache{}
	}
	if p == nil {
		p = events.NewLogPublisher(logger)
	}
	return &BookingNotifier{cache: c, publisher: p, audit: audit, logger: logger}
}

// notifyTimeout bounds the side effects of one committed change
const notifyTimeout = 5 * time.Second

// bookingChanged runs after the commit. It keeps the caller's values but not
// its cancellation: a client that hangs up must not leave the cache stale.
func (n *BookingNotifier) bookingChanged(ctx context.Context, eventType, auditAction string, booking *models.Booking, actor models.Actor, at time.Time, extra map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	fields := logrus.Fields{
		"booking_id":  booking.ID,
		"bus_id":      booking.BusID,
		"travel_date": booking.TravelDate,
	}

	if err := n.cache.Invalidate(ctx, booking.Key()); err != nil {
		n.logger.WithError(err).WithFields(fields).Warn("Failed to invalidate availability cache")
	}

	if n.audit != nil {
		n.audit.LogBookingAction(ctx, auditAction, booking, actor, extra)
	}

	event := events.NewBookingEvent(eventType, booking, actor.Role, at)
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.WithError(err).WithFields(fields).WithField("event", eventType).Error("Failed to publish booking event")
	}
}
