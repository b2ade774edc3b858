package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/stretchr/testify/require"
)

// 2026-11-02 08:00 UTC
var testNow = time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)

const testTravelDate = "2026-11-03"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEngine struct {
	store        *database.MemoryStore
	clock        *testClock
	cfg          EngineConfig
	metrics      *metrics.Metrics
	reservations *ReservationService
	lifecycle    *BookingLifecycleService
	availability *AvailabilityService
	buses        *BusService
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T, tweak ...func(*EngineConfig)) *testEngine {
	t.Helper()

	clock := &testClock{now: testNow}
	cfg := DefaultEngineConfig()
	cfg.Location = time.UTC
	cfg.LockTimeout = 200 * time.Millisecond
	cfg.LockRetryBackoff = 10 * time.Millisecond
	cfg.Now = clock.Now
	for _, fn := range tweak {
		fn(&cfg)
	}

	logger := testLogger()
	store := database.NewMemoryStore()
	m := metrics.New()
	locker := NewSeatLocker(store, cfg, m, logger)
	notifier := NewBookingNotifier(nil, nil, NewAuditService(nil, logger), logger)

	return &testEngine{
		store:        store,
		clock:        clock,
		cfg:          cfg,
		metrics:      m,
		reservations: NewReservationService(store, locker, notifier, m, logger, cfg),
		lifecycle:    NewBookingLifecycleService(store, store, locker, notifier, m, logger, cfg),
		availability: NewAvailabilityService(store, store, nil, logger, cfg),
		buses:        NewBusService(store, logger, cfg),
	}
}

func testBusRequest() *models.CreateBusRequest {
	return &models.CreateBusRequest{
		BusNumber:          "NB-1234",
		Source:             "Colombo",
		Destination:        "Kandy",
		DepartureTime:      "18:00",
		ArrivalTime:        "21:30",
		TotalSeats:         41,
		SeatArrangement:    "2-2",
		FirstRowSeats:      2,
		LastRowSeats:       3,
		BookingOpenTime:    "06:00",
		BookingCloseTime:   "22:00",
		AdvanceBookingDays: 30,
		FarePerSeat:        500,
	}
}

func (e *testEngine) createBus(t *testing.T, mutate ...func(*models.CreateBusRequest)) *models.Bus {
	t.Helper()
	req := testBusRequest()
	for _, fn := range mutate {
		fn(req)
	}
	bus, err := e.buses.CreateBus(context.Background(), req)
	require.NoError(t, err)
	return bus
}

func customer(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleCustomer}
}

func agent(id string) models.Actor {
	return models.Actor{UserID: id, Role: models.RoleAgent}
}

var (
	admin         = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	paymentSystem = models.Actor{UserID: "payments", Role: models.RoleSystem}
)

func bookingRequest(busID string, seats ...int) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		BusID:       busID,
		TravelDate:  testTravelDate,
		SeatNumbers: seats,
		Passenger: models.PassengerDetails{
			Name:   "Nimal Perera",
			Age:    34,
			Gender: "Male",
		},
	}
}

func (e *testEngine) reserve(t *testing.T, busID string, actor models.Actor, seats ...int) *models.Booking {
	t.Helper()
	booking, err := e.reservations.Reserve(context.Background(), bookingRequest(busID, seats...), actor)
	require.NoError(t, err)
	return booking
}
