package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// BusService handles bus configuration for the admin console and the public
// booking-status lookup
type BusService struct {
	buses  database.BusStore
	logger *logrus.Logger
	cfg    EngineConfig
}

// NewBusService creates a new BusService
func NewBusService(buses database.BusStore, logger *logrus.Logger, cfg EngineConfig) *BusService {
	return &BusService{
		buses:  buses,
		logger: logger,
		cfg:    cfg,
	}
}

// CreateBus validates and stores a new bus
func (s *BusService) CreateBus(ctx context.Context, req *models.CreateBusRequest) (*models.Bus, error) {
	bus := req.ToBus()
	if err := ValidateBus(bus); err != nil {
		return nil, err
	}
	if err := s.buses.CreateBus(ctx, bus); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"bus_id":     bus.ID,
		"bus_number": bus.BusNumber,
	}).Info("Bus created")
	return bus, nil
}

// UpdateBus applies a partial update. The seat configuration is frozen while
// the bus has pending or confirmed bookings for today or later. The count and
// the write run under the bus lock, so no reservation can slip in between.
func (s *BusService) UpdateBus(ctx context.Context, busID string, req *models.UpdateBusRequest) (*models.Bus, error) {
	today := s.cfg.today(s.cfg.now()).Format(models.DateLayout)

	updated, err := s.buses.UpdateBusLocked(ctx, busID, func(tx database.BusTx) (*models.Bus, error) {
		current := tx.Current()
		updated := req.ApplyTo(current)
		if err := ValidateBus(updated); err != nil {
			return nil, err
		}
		if updated.SeatConfigEquals(current) {
			return updated, nil
		}

		active, err := tx.CountActiveBookingsFrom(today)
		if err != nil {
			return nil, fmt.Errorf("failed to count active bookings: %w", err)
		}
		if active > 0 {
			return nil, fmt.Errorf("%w: %d active bookings from %s", models.ErrSeatConfigurationLocked, active, today)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"bus_id":     updated.ID,
		"bus_number": updated.BusNumber,
	}).Info("Bus updated")
	return updated, nil
}

// GetBus returns a bus by ID
func (s *BusService) GetBus(ctx context.Context, busID string) (*models.Bus, error) {
	return s.buses.GetBus(ctx, busID)
}

// ListBuses returns all buses, or only active ones
func (s *BusService) ListBuses(ctx context.Context, activeOnly bool) ([]*models.Bus, error) {
	return s.buses.ListBuses(ctx, activeOnly)
}

// GetBookingStatus reports whether the bus is accepting reservations at now
func (s *BusService) GetBookingStatus(ctx context.Context, busID string) (*models.BookingStatusResponse, error) {
	bus, err := s.buses.GetBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	window := bus.BookingWindow()
	open, err := IsWindowOpen(window, s.cfg.now(), s.cfg.Location)
	if err != nil {
		return nil, err
	}

	return &models.BookingStatusResponse{
		BusID:     bus.ID,
		IsOpen:    open,
		Message:   BookingWindowMessage(window, open),
		OpenTime:  window.OpenTime,
		CloseTime: window.CloseTime,
	}, nil
}

// ValidateBus checks a bus configuration before it is stored
func ValidateBus(bus *models.Bus) error {
	if strings.TrimSpace(bus.BusNumber) == "" {
		return fmt.Errorf("%w: bus number is required", models.ErrInvalidRequest)
	}
	if strings.TrimSpace(bus.Source) == "" || strings.TrimSpace(bus.Destination) == "" {
		return fmt.Errorf("%w: source and destination are required", models.ErrInvalidRequest)
	}
	if _, err := parseClock(bus.DepartureTime); err != nil {
		return err
	}
	if _, err := parseClock(bus.ArrivalTime); err != nil {
		return err
	}
	if err := ValidateBookingWindow(bus.BookingWindow()); err != nil {
		return err
	}
	if _, err := GenerateLayout(bus.TotalSeats, bus.SeatArrangement, bus.FirstRowSeats, bus.LastRowSeats); err != nil {
		return err
	}
	if bus.FarePerSeat < 0 {
		return fmt.Errorf("%w: fare per seat must not be negative", models.ErrInvalidConfiguration)
	}
	if bus.AdvanceBookingDays < 0 {
		return fmt.Errorf("%w: advance booking days must not be negative", models.ErrInvalidConfiguration)
	}
	return nil
}
