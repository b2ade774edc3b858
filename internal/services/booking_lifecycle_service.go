package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/events"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

const expiredReason = "payment not completed before the hold expired"

// BookingLifecycleService owns booking status transitions after a
// reservation: payment confirmation, payment failure, cancellation, and
// expiry of abandoned holds. Every transition that releases seats does so in
// the same locked step as the status write.
type BookingLifecycleService struct {
	buses    database.BusStore
	seats    database.SeatStore
	locker   *SeatLocker
	notifier *BookingNotifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	cfg      EngineConfig
}

// NewBookingLifecycleService creates a new BookingLifecycleService
func NewBookingLifecycleService(
	buses database.BusStore,
	seats database.SeatStore,
	locker *SeatLocker,
	notifier *BookingNotifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
	cfg EngineConfig,
) *BookingLifecycleService {
	return &BookingLifecycleService{
		buses:    buses,
		seats:    seats,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// GetBooking returns a booking to its creator, an admin, or the system
func (s *BookingLifecycleService) GetBooking(ctx context.Context, bookingID string, actor models.Actor) (*models.Booking, error) {
	booking, err := s.seats.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingAccess(booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings lists bookings for the admin console
func (s *BookingLifecycleService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	return s.seats.ListBookings(ctx, filter)
}

// ConfirmPayment moves a pending booking to confirmed. Repeating the call with
// the same payment reference returns the booking unchanged.
func (s *BookingLifecycleService) ConfirmPayment(ctx context.Context, bookingID, paymentReference string, actor models.Actor) (*models.Booking, error) {
	if err := requirePaymentCaller(actor); err != nil {
		return nil, err
	}
	if paymentReference == "" {
		return nil, fmt.Errorf("%w: payment reference is required", models.ErrInvalidRequest)
	}

	snapshot, err := s.seats.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.now()
	var confirmed *models.Booking
	changed := false

	err = s.locker.Do(ctx, snapshot.Key(), func(tx database.SeatTx) error {
		booking, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		if booking.Status == models.BookingStatusConfirmed &&
			booking.PaymentReference != nil && *booking.PaymentReference == paymentReference {
			confirmed = booking
			return nil
		}
		if err := booking.Confirm(paymentReference, now); err != nil {
			return err
		}
		if err := tx.UpdateBooking(booking); err != nil {
			return err
		}
		confirmed = booking
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.ObserveConfirmation()
		s.logger.WithFields(logrus.Fields{
			"booking_id":        confirmed.ID,
			"payment_reference": paymentReference,
		}).Info("Booking confirmed")
		s.notifier.bookingChanged(ctx, events.TypeBookingConfirmed, AuditActionConfirm, confirmed, actor, now, map[string]interface{}{
			"payment_reference": paymentReference,
		})
	}
	return confirmed, nil
}

// FailPayment cancels a pending booking whose payment failed and releases its
// seats. The cancellation cutoff does not apply. Failing an already cancelled
// booking returns it unchanged.
func (s *BookingLifecycleService) FailPayment(ctx context.Context, bookingID, reason string, actor models.Actor) (*models.Booking, error) {
	if err := requirePaymentCaller(actor); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "payment failed"
	}

	snapshot, err := s.seats.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.now()
	var failed *models.Booking
	changed := false

	err = s.locker.Do(ctx, snapshot.Key(), func(tx database.SeatTx) error {
		booking, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		switch booking.Status {
		case models.BookingStatusCancelled:
			failed = booking
			return nil
		case models.BookingStatusConfirmed:
			return fmt.Errorf("%w: booking is already paid", models.ErrInvalidTransition)
		}
		if err := cancelAndRelease(tx, booking, reason, 0, now); err != nil {
			return err
		}
		failed = booking
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.ObserveCancellation(metrics.CancelPaymentFail)
		s.logger.WithFields(logrus.Fields{
			"booking_id": failed.ID,
			"reason":     reason,
		}).Info("Booking cancelled after payment failure")
		s.notifier.bookingChanged(ctx, events.TypeBookingCancelled, AuditActionFail, failed, actor, now, map[string]interface{}{
			"reason": reason,
		})
	}
	return failed, nil
}

// CancelBooking cancels a booking on behalf of its creator or an admin and
// releases its seats. It fails with CancellationWindowClosed once departure
// is closer than the cutoff.
func (s *BookingLifecycleService) CancelBooking(ctx context.Context, bookingID string, actor models.Actor, now time.Time, reason string) (*models.Booking, error) {
	snapshot, err := s.seats.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingAccess(snapshot, actor); err != nil {
		return nil, err
	}
	if !snapshot.HoldsSeats() {
		return nil, fmt.Errorf("%w: booking is already %s", models.ErrInvalidTransition, snapshot.Status)
	}

	bus, err := s.buses.GetBus(ctx, snapshot.BusID)
	if err != nil {
		return nil, err
	}
	departure, err := bus.DepartureAt(snapshot.TravelDate, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: bus departure time %q is malformed", models.ErrInvalidConfiguration, bus.DepartureTime)
	}
	if departure.Sub(now) < s.cfg.CancellationCutoff {
		return nil, &models.CancellationWindowClosedError{Departure: departure, Cutoff: s.cfg.CancellationCutoff}
	}

	if reason == "" {
		reason = fmt.Sprintf("cancelled by %s", actor.Role)
	}

	var cancelled *models.Booking
	err = s.locker.Do(ctx, snapshot.Key(), func(tx database.SeatTx) error {
		booking, err := tx.GetBooking(bookingID)
		if err != nil {
			return err
		}
		refund := ComputeRefund(booking.TotalAmount, s.cfg.CancellationFeePercent, booking.Status == models.BookingStatusConfirmed)
		if err := cancelAndRelease(tx, booking, reason, refund, now); err != nil {
			return err
		}
		cancelled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCancellation(metrics.CancelByUser)
	s.logger.WithFields(logrus.Fields{
		"booking_id":  cancelled.ID,
		"bus_id":      cancelled.BusID,
		"travel_date": cancelled.TravelDate,
		"seats":       cancelled.SeatNumbers,
		"refund":      cancelled.RefundAmount,
	}).Info("Booking cancelled")
	s.notifier.bookingChanged(ctx, events.TypeBookingCancelled, AuditActionCancel, cancelled, actor, now, map[string]interface{}{
		"reason":        reason,
		"refund_amount": cancelled.RefundAmount,
	})
	return cancelled, nil
}

// ExpirePending cancels pending bookings whose hold has lapsed and releases
// their seats. It returns how many bookings were expired. Individual
// failures are logged and skipped so one bad record cannot stall the sweep.
func (s *BookingLifecycleService) ExpirePending(ctx context.Context) (int, error) {
	now := s.cfg.now()
	due, err := s.seats.ListExpiredPending(ctx, now, s.cfg.ExpiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired bookings: %w", err)
	}

	system := models.Actor{UserID: "expiry-sweep", Role: models.RoleSystem}
	expired := 0
	for _, candidate := range due {
		var booking *models.Booking
		err := s.locker.Do(ctx, candidate.Key(), func(tx database.SeatTx) error {
			current, err := tx.GetBooking(candidate.ID)
			if err != nil {
				return err
			}
			// confirmed or cancelled while waiting for the lock
			if !current.IsExpired(now) {
				return nil
			}
			if err := cancelAndRelease(tx, current, expiredReason, 0, now); err != nil {
				return err
			}
			booking = current
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", candidate.ID).Error("Failed to expire booking")
			continue
		}
		if booking == nil {
			continue
		}

		expired++
		s.metrics.ObserveCancellation(metrics.CancelPendingTimer)
		s.logger.WithFields(logrus.Fields{
			"booking_id":  booking.ID,
			"bus_id":      booking.BusID,
			"travel_date": booking.TravelDate,
			"seats":       booking.SeatNumbers,
		}).Info("Pending booking expired and seats released")
		s.notifier.bookingChanged(ctx, events.TypeBookingExpired, AuditActionExpire, booking, system, now, nil)
	}

	s.metrics.ObserveExpired(expired)
	return expired, nil
}

func cancelAndRelease(tx database.SeatTx, booking *models.Booking, reason string, refund int64, now time.Time) error {
	if err := booking.Cancel(reason, refund, now); err != nil {
		return err
	}
	if err := tx.UpdateBooking(booking); err != nil {
		return err
	}
	_, err := tx.ReleaseSeats(booking.ID)
	return err
}

// authorizeBookingAccess lets customers and agents touch only the bookings
// they created
func authorizeBookingAccess(booking *models.Booking, actor models.Actor) error {
	switch actor.Role {
	case models.RoleAdmin, models.RoleSystem:
		return nil
	case models.RoleCustomer, models.RoleAgent:
		if booking.CreatedBy == actor.UserID && booking.CreatorRole == actor.Role {
			return nil
		}
	}
	return fmt.Errorf("%w: booking %s belongs to another user", models.ErrForbidden, booking.ID)
}

func requirePaymentCaller(actor models.Actor) error {
	if actor.Role != models.RoleSystem && actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: payment callbacks are restricted to the payment service", models.ErrForbidden)
	}
	return nil
}
