package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/events"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/pkg/validator"
)

// ReservationService turns a seat selection into a pending booking. The
// request is validated against the bus before the seat map lock is taken and
// again, against the row locked inside it, before the claim.
type ReservationService struct {
	buses    database.BusStore
	locker   *SeatLocker
	notifier *BookingNotifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	cfg      EngineConfig
}

// NewReservationService creates a new ReservationService
func NewReservationService(
	buses database.BusStore,
	locker *SeatLocker,
	notifier *BookingNotifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
	cfg EngineConfig,
) *ReservationService {
	return &ReservationService{
		buses:    buses,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Reserve claims every requested seat for a new pending booking or none of
// them.
func (s *ReservationService) Reserve(ctx context.Context, req *models.CreateBookingRequest, actor models.Actor) (*models.Booking, error) {
	booking, err := s.reserve(ctx, req, actor)
	s.metrics.ObserveReservation(reservationOutcome(err))
	return booking, err
}

// referenceAttempts bounds how many booking references one reservation tries
const referenceAttempts = 2

func (s *ReservationService) reserve(ctx context.Context, req *models.CreateBookingRequest, actor models.Actor) (*models.Booking, error) {
	if actor.Role != models.RoleCustomer && actor.Role != models.RoleAgent {
		return nil, fmt.Errorf("%w: only customers and agents can reserve seats", models.ErrForbidden)
	}

	bus, err := s.buses.GetBus(ctx, req.BusID)
	if err != nil {
		return nil, err
	}

	now := s.cfg.now()

	terms, err := s.admit(bus, req, actor, now)
	if err != nil {
		return nil, err
	}
	passenger, err := normalizePassenger(req.Passenger)
	if err != nil {
		return nil, err
	}

	expires := now.Add(s.cfg.PendingTTL)
	booking := &models.Booking{
		ID:               uuid.New().String(),
		BusID:            bus.ID,
		TravelDate:       req.TravelDate,
		SeatNumbers:      terms.seats,
		Passenger:        passenger,
		Status:           models.BookingStatusPending,
		TotalAmount:      terms.total,
		CommissionAmount: terms.commission,
		CreatorRole:      actor.Role,
		CreatedBy:        actor.UserID,
		ExpiresAt:        &expires,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	claim := func(tx database.SeatTx) error {
		// the bus may have been reconfigured since it was read above
		locked, err := tx.Bus()
		if err != nil {
			return err
		}
		terms, err := s.admit(locked, req, actor, now)
		if err != nil {
			return err
		}
		booking.SeatNumbers = terms.seats
		booking.TotalAmount = terms.total
		booking.CommissionAmount = terms.commission

		held, err := tx.HeldSeats()
		if err != nil {
			return err
		}
		var taken []int
		for _, seat := range terms.seats {
			if _, ok := held[seat]; ok {
				taken = append(taken, seat)
			}
		}
		if len(taken) > 0 {
			return models.NewSeatConflictError(taken)
		}
		return tx.CreateBooking(booking)
	}

	for attempt := 1; ; attempt++ {
		booking.BookingReference = s.cfg.reference(now)
		err = s.locker.Do(ctx, booking.Key(), claim)
		if !errors.Is(err, database.ErrDuplicateReference) {
			break
		}
		if attempt == referenceAttempts {
			err = fmt.Errorf("%w: %w", models.ErrBusy, err)
			break
		}
		s.logger.WithField("booking_reference", booking.BookingReference).Warn("Booking reference taken, generating another")
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"bus_id":      bus.ID,
			"travel_date": req.TravelDate,
			"seats":       booking.SeatNumbers,
			"role":        actor.Role,
		}).Info("Reservation rejected")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"bus_id":      bus.ID,
		"travel_date": booking.TravelDate,
		"seats":       booking.SeatNumbers,
	}).Info("Seats reserved")

	s.notifier.bookingChanged(ctx, events.TypeBookingReserved, AuditActionReserve, booking, actor, now, map[string]interface{}{
		"total_amount":      booking.TotalAmount,
		"commission_amount": booking.CommissionAmount,
	})

	return booking, nil
}

// reservationTerms is what a bus configuration makes of a request
type reservationTerms struct {
	seats      models.SeatNumbers
	total      int64
	commission int64
}

// admit checks the request against one reading of the bus: seat range, travel
// date, and booking window. It prices the seats it accepts.
func (s *ReservationService) admit(bus *models.Bus, req *models.CreateBookingRequest, actor models.Actor, now time.Time) (reservationTerms, error) {
	seats, err := validateSeatSelection(req.SeatNumbers, bus.TotalSeats, s.cfg.MaxSeatsPerBooking)
	if err != nil {
		return reservationTerms{}, err
	}
	if err := s.validateTravelDate(bus, req.TravelDate, now); err != nil {
		return reservationTerms{}, err
	}

	window := bus.BookingWindow()
	open, err := IsWindowOpen(window, now, s.cfg.Location)
	if err != nil {
		return reservationTerms{}, err
	}
	if !open && !(actor.Role == models.RoleAgent && s.cfg.AgentWindowOverride) {
		return reservationTerms{}, &models.WindowClosedError{
			OpenTime:  window.OpenTime,
			CloseTime: window.CloseTime,
			IsActive:  window.IsActive,
		}
	}

	terms := reservationTerms{seats: seats, total: ComputeFare(bus.FarePerSeat, len(seats))}
	if actor.Role == models.RoleAgent {
		terms.commission = ComputeCommission(terms.total, s.cfg.AgentCommissionPercent)
	}
	return terms, nil
}

// normalizePassenger validates the passenger and canonicalises gender and
// contact details
func normalizePassenger(p models.PassengerDetails) (models.PassengerDetails, error) {
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}

	p.Name = strings.TrimSpace(p.Name)
	p.Gender = strings.ToLower(p.Gender)
	if p.Phone != nil {
		phone, err := validator.NormalizePhone(*p.Phone)
		if err != nil {
			return p, fmt.Errorf("%w: passenger %v", models.ErrInvalidRequest, err)
		}
		p.Phone = &phone
	}
	if p.Email != nil {
		email, err := validator.NormalizeEmail(*p.Email)
		if err != nil {
			return p, fmt.Errorf("%w: passenger %v", models.ErrInvalidRequest, err)
		}
		p.Email = &email
	}
	return p, nil
}

// validateSeatSelection rejects empty, duplicate, and out-of-range seat lists
// and returns the seats sorted
func validateSeatSelection(seats []int, totalSeats, maxSeats int) (models.SeatNumbers, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: at least one seat is required", models.ErrInvalidSeatSelection)
	}
	if maxSeats > 0 && len(seats) > maxSeats {
		return nil, fmt.Errorf("%w: at most %d seats per booking", models.ErrInvalidSeatSelection, maxSeats)
	}

	seen := make(map[int]bool, len(seats))
	for _, seat := range seats {
		if seat < 1 || seat > totalSeats {
			return nil, fmt.Errorf("%w: seat %d is outside 1-%d", models.ErrInvalidSeatSelection, seat, totalSeats)
		}
		if seen[seat] {
			return nil, fmt.Errorf("%w: seat %d requested twice", models.ErrInvalidSeatSelection, seat)
		}
		seen[seat] = true
	}

	sorted := append(models.SeatNumbers(nil), seats...)
	sort.Ints(sorted)
	return sorted, nil
}

// validateTravelDate checks the date against today, the advance booking
// horizon, and the departure time
func (s *ReservationService) validateTravelDate(bus *models.Bus, travelDate string, now time.Time) error {
	date, err := time.ParseInLocation(models.DateLayout, travelDate, s.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: travel date %q must be YYYY-MM-DD", models.ErrInvalidRequest, travelDate)
	}

	today := s.cfg.today(now)
	if date.Before(today) {
		return fmt.Errorf("%w: travel date %s is in the past", models.ErrInvalidRequest, travelDate)
	}
	if last := today.AddDate(0, 0, bus.AdvanceBookingDays); date.After(last) {
		return fmt.Errorf("%w: bookings open at most %d days ahead", models.ErrInvalidRequest, bus.AdvanceBookingDays)
	}

	departure, err := bus.DepartureAt(travelDate, s.cfg.Location)
	if err != nil {
		return fmt.Errorf("%w: bus departure time %q is malformed", models.ErrInvalidConfiguration, bus.DepartureTime)
	}
	if !departure.After(now) {
		return fmt.Errorf("%w: bus has already departed on %s", models.ErrInvalidRequest, travelDate)
	}
	return nil
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeReserved
	case errors.Is(err, models.ErrSeatConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, models.ErrWindowClosed):
		return metrics.OutcomeWindowClosed
	case errors.Is(err, models.ErrBusy):
		return metrics.OutcomeBusy
	case errors.Is(err, models.ErrInvalidSeatSelection), errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrForbidden):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
