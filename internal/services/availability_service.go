package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/cache"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// AvailabilityService answers which seats of a bus are held on a travel date.
//
// GetHeldSeats always reads the store and is the view the reservation path
// trusts. GetAvailableSeats is the display path and may be served from the
// cache, which every committed booking change invalidates.
type AvailabilityService struct {
	buses  database.BusStore
	seats  database.SeatStore
	cache  cache.AvailabilityCache
	logger *logrus.Logger
	cfg    EngineConfig
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(
	buses database.BusStore,
	seats database.SeatStore,
	c cache.AvailabilityCache,
	logger *logrus.Logger,
	cfg EngineConfig,
) *AvailabilityService {
	if c == nil {
		c = cache.NopAvailabilityCache{}
	}
	return &AvailabilityService{
		buses:  buses,
		seats:  seats,
		cache:  c,
		logger: logger,
		cfg:    cfg,
	}
}

// GetHeldSeats returns the committed seat holds for a bus and travel date
func (s *AvailabilityService) GetHeldSeats(ctx context.Context, busID, travelDate string) ([]int, error) {
	if _, err := time.Parse(models.DateLayout, travelDate); err != nil {
		return nil, fmt.Errorf("%w: travel date %q must be YYYY-MM-DD", models.ErrInvalidRequest, travelDate)
	}
	return s.seats.HeldSeats(ctx, models.SeatKey{BusID: busID, TravelDate: travelDate})
}

// GetAvailableSeats returns the bus layout together with the held seats
func (s *AvailabilityService) GetAvailableSeats(ctx context.Context, busID, travelDate string) (*models.AvailableSeatsResponse, error) {
	if _, err := time.Parse(models.DateLayout, travelDate); err != nil {
		return nil, fmt.Errorf("%w: travel date %q must be YYYY-MM-DD", models.ErrInvalidRequest, travelDate)
	}

	bus, err := s.buses.GetBus(ctx, busID)
	if err != nil {
		return nil, err
	}

	layout, err := GenerateLayout(bus.TotalSeats, bus.SeatArrangement, bus.FirstRowSeats, bus.LastRowSeats)
	if err != nil {
		return nil, err
	}

	key := models.SeatKey{BusID: bus.ID, TravelDate: travelDate}
	held, err := s.cachedHeldSeats(ctx, key)
	if err != nil {
		return nil, err
	}

	return &models.AvailableSeatsResponse{
		BusID:          bus.ID,
		TravelDate:     travelDate,
		Layout:         *layout,
		HeldSeats:      held,
		AvailableCount: bus.TotalSeats - len(held),
	}, nil
}

func (s *AvailabilityService) cachedHeldSeats(ctx context.Context, key models.SeatKey) ([]int, error) {
	fields := logrus.Fields{"bus_id": key.BusID, "travel_date": key.TravelDate}

	held, ok, err := s.cache.GetHeldSeats(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("Availability cache read failed")
	}
	if ok {
		return held, nil
	}

	held, err = s.seats.HeldSeats(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetHeldSeats(ctx, key, held); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("Availability cache write failed")
	}
	return held, nil
}
