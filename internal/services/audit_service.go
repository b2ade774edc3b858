package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/utils"
)

// Audit actions
const (
	AuditActionReserve = "booking_reserve"
	AuditActionConfirm = "booking_confirm"
	AuditActionCancel  = "booking_cancel"
	AuditActionFail    = "booking_payment_failed"
	AuditActionExpire  = "booking_expire"
)

// AuditService records booking lifecycle actions. Without a database it only
// logs them.
type AuditService struct {
	db     database.DB
	logger *logrus.Logger
}

// NewAuditService creates a new audit service; db may be nil
func NewAuditService(db database.DB, logger *logrus.Logger) *AuditService {
	return &AuditService{
		db:     db,
		logger: logger,
	}
}

// AuditEvent represents one booking action to be recorded
type AuditEvent struct {
	BookingID string
	Action    string
	Actor     models.Actor
	Details   map[string]interface{} // stored as JSONB
}

// LogBookingAction records an action on a booking. Audit failures never fail
// the booking operation; they are logged and swallowed.
func (s *AuditService) LogBookingAction(ctx context.Context, action string, booking *models.Booking, actor models.Actor, extra map[string]interface{}) {
	details := map[string]interface{}{
		"booking_reference": booking.BookingReference,
		"bus_id":            booking.BusID,
		"travel_date":       booking.TravelDate,
		"seat_numbers":      booking.SeatNumbers,
		"status":            booking.Status,
		"device_info":       utils.ParseUserAgent(actor.UserAgent),
	}
	for k, v := range extra {
		details[k] = v
	}

	event := AuditEvent{
		BookingID: booking.ID,
		Action:    action,
		Actor:     actor,
		Details:   details,
	}

	if err := s.logEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"action":     action,
		}).Error("Failed to write booking audit record")
	}
}

// logEvent is the internal method that writes to the booking_audit_log table
func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	entry := s.logger.WithFields(logrus.Fields{
		"audit":      true,
		"booking_id": event.BookingID,
		"action":     event.Action,
		"actor_id":   event.Actor.UserID,
		"actor_role": event.Actor.Role,
		"ip_address": event.Actor.IPAddress,
	})

	if s.db == nil {
		entry.WithField("details", event.Details).Info("Booking audit")
		return nil
	}
	entry.Debug("Booking audit")

	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO booking_audit_log (booking_id, action, actor_id, actor_role, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.db.ExecContext(ctx, query,
		event.BookingID,
		event.Action,
		event.Actor.UserID,
		string(event.Actor.Role),
		event.Actor.IPAddress,
		event.Actor.UserAgent,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}
