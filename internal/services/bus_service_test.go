package services

import (
	"context"
	"testing"
	"time"

	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBusValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.CreateBusRequest)
		wantErr error
	}{
		{"missing bus number", func(r *models.CreateBusRequest) { r.BusNumber = "" }, models.ErrInvalidRequest},
		{"missing destination", func(r *models.CreateBusRequest) { r.Destination = " " }, models.ErrInvalidRequest},
		{"bad departure time", func(r *models.CreateBusRequest) { r.DepartureTime = "6pm" }, models.ErrInvalidConfiguration},
		{"close before open without overnight flag", func(r *models.CreateBusRequest) {
			r.BookingOpenTime = "22:00"
			r.BookingCloseTime = "06:00"
		}, models.ErrInvalidConfiguration},
		{"overnight flag on day window", func(r *models.CreateBusRequest) { r.IsOvernightWindow = true }, models.ErrInvalidConfiguration},
		{"seats do not fill rows", func(r *models.CreateBusRequest) { r.TotalSeats = 42 }, models.ErrInvalidConfiguration},
		{"bad arrangement", func(r *models.CreateBusRequest) { r.SeatArrangement = "3" }, models.ErrInvalidConfiguration},
		{"negative fare", func(r *models.CreateBusRequest) { r.FarePerSeat = -1 }, models.ErrInvalidConfiguration},
		{"negative advance days", func(r *models.CreateBusRequest) { r.AdvanceBookingDays = -1 }, models.ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			req := testBusRequest()
			tt.mutate(req)

			_, err := e.buses.CreateBus(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateBusOvernightWindow(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t, func(r *models.CreateBusRequest) {
		r.BookingOpenTime = "22:00"
		r.BookingCloseTime = "06:00"
		r.IsOvernightWindow = true
	})

	assert.NotEmpty(t, bus.ID)
	assert.True(t, bus.IsActive)
	assert.True(t, bus.IsOvernightWindow)
}

func TestCreateBusDuplicateNumber(t *testing.T) {
	e := newTestEngine(t)
	e.createBus(t)

	_, err := e.buses.CreateBus(context.Background(), testBusRequest())
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

func TestUpdateBusSeatConfigurationLock(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()
	booking := e.reserve(t, bus.ID, customer("cust-1"), 1)

	fare := int64(650)
	updated, err := e.buses.UpdateBus(ctx, bus.ID, &models.UpdateBusRequest{FarePerSeat: &fare})
	require.NoError(t, err)
	assert.Equal(t, int64(650), updated.FarePerSeat)

	seats := 45
	_, err = e.buses.UpdateBus(ctx, bus.ID, &models.UpdateBusRequest{TotalSeats: &seats})
	assert.ErrorIs(t, err, models.ErrSeatConfigurationLocked)

	stored, err := e.buses.GetBus(ctx, bus.ID)
	require.NoError(t, err)
	assert.Equal(t, 41, stored.TotalSeats)

	_, err = e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)

	updated, err = e.buses.UpdateBus(ctx, bus.ID, &models.UpdateBusRequest{TotalSeats: &seats})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.TotalSeats)
}

// stallingSeatStore holds every locked section after its work is done and
// before it commits, until resume is closed
type stallingSeatStore struct {
	database.SeatStore
	claimed chan struct{}
	resume  chan struct{}
}

func (s *stallingSeatStore) WithSeatLock(ctx context.Context, key models.SeatKey, fn func(tx database.SeatTx) error) error {
	return s.SeatStore.WithSeatLock(ctx, key, func(tx database.SeatTx) error {
		if err := fn(tx); err != nil {
			return err
		}
		close(s.claimed)
		<-s.resume
		return nil
	})
}

func TestUpdateBusWaitsForReservationInFlight(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.LockTimeout = 5 * time.Second })
	bus := e.createBus(t)
	ctx := context.Background()
	logger := testLogger()

	stalled := &stallingSeatStore{SeatStore: e.store, claimed: make(chan struct{}), resume: make(chan struct{})}
	locker := NewSeatLocker(stalled, e.cfg, e.metrics, logger)
	reservations := NewReservationService(e.store, locker, NewBookingNotifier(nil, nil, nil, logger), e.metrics, logger, e.cfg)

	reserved := make(chan error, 1)
	go func() {
		_, err := reservations.Reserve(ctx, bookingRequest(bus.ID, 40), customer("cust-1"))
		reserved <- err
	}()
	<-stalled.claimed

	updated := make(chan error, 1)
	go func() {
		seats, first, last := 21, 1, 0
		_, err := e.buses.UpdateBus(ctx, bus.ID, &models.UpdateBusRequest{
			TotalSeats:    &seats,
			FirstRowSeats: &first,
			LastRowSeats:  &last,
		})
		updated <- err
	}()

	select {
	case err := <-updated:
		t.Fatalf("bus update finished before the reservation committed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(stalled.resume)
	require.NoError(t, <-reserved)
	assert.ErrorIs(t, <-updated, models.ErrSeatConfigurationLocked)

	stored, err := e.buses.GetBus(ctx, bus.ID)
	require.NoError(t, err)
	assert.Equal(t, 41, stored.TotalSeats)
}

func TestUpdateBusIgnoresPastBookings(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	e.reserve(t, bus.ID, customer("cust-1"), 1)

	// two days later the booking's travel date is in the past
	e.buses.cfg.Now = func() time.Time { return testNow.Add(48 * time.Hour) }

	arrangement := "2-1"
	seats := 32 // 2 + 27 + 3
	_, err := e.buses.UpdateBus(context.Background(), bus.ID, &models.UpdateBusRequest{
		TotalSeats:      &seats,
		SeatArrangement: &arrangement,
	})
	assert.NoError(t, err)
}

func TestUpdateBusValidatesResult(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)

	closeAt := "05:00"
	_, err := e.buses.UpdateBus(context.Background(), bus.ID, &models.UpdateBusRequest{BookingCloseTime: &closeAt})
	assert.ErrorIs(t, err, models.ErrInvalidConfiguration)

	_, err = e.buses.UpdateBus(context.Background(), "missing", &models.UpdateBusRequest{BookingCloseTime: &closeAt})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetBookingStatus(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	status, err := e.buses.GetBookingStatus(ctx, bus.ID)
	require.NoError(t, err)
	assert.True(t, status.IsOpen)
	assert.Equal(t, "Booking is open until 22:00", status.Message)
	assert.Equal(t, "06:00", status.OpenTime)
	assert.Equal(t, "22:00", status.CloseTime)

	e.clock.Set(time.Date(2026, 11, 2, 23, 0, 0, 0, time.UTC))
	status, err = e.buses.GetBookingStatus(ctx, bus.ID)
	require.NoError(t, err)
	assert.False(t, status.IsOpen)
	assert.Equal(t, "Booking opens at 06:00 and closes at 22:00", status.Message)

	_, err = e.buses.GetBookingStatus(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBuses(t *testing.T) {
	e := newTestEngine(t)
	inactive := false
	e.createBus(t, func(r *models.CreateBusRequest) { r.BusNumber = "NB-2"; r.IsActive = &inactive })
	e.createBus(t, func(r *models.CreateBusRequest) { r.BusNumber = "NB-1" })

	all, err := e.buses.ListBuses(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "NB-1", all[0].BusNumber)

	active, err := e.buses.ListBuses(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
