package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelReleasesSeats(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	booking := e.reserve(t, bus.ID, customer("cust-1"), 5)
	_, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-001", paymentSystem)
	require.NoError(t, err)

	seats, err := e.availability.GetAvailableSeats(ctx, bus.ID, testTravelDate)
	require.NoError(t, err)
	assert.Contains(t, seats.HeldSeats, 5)
	assert.Equal(t, 40, seats.AvailableCount)

	cancelled, err := e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, int64(500), cancelled.RefundAmount)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "change of plans", *cancelled.CancellationReason)

	seats, err = e.availability.GetAvailableSeats(ctx, bus.ID, testTravelDate)
	require.NoError(t, err)
	assert.NotContains(t, seats.HeldSeats, 5)
	assert.Equal(t, 41, seats.AvailableCount)

	// the released seat can be claimed again
	e.reserve(t, bus.ID, customer("cust-2"), 5)
}

func TestCancelPendingRefundsNothing(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.CancellationFeePercent = 10 })
	bus := e.createBus(t)

	booking := e.reserve(t, bus.ID, customer("cust-1"), 1, 2)
	cancelled, err := e.lifecycle.CancelBooking(context.Background(), booking.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cancelled.RefundAmount)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "cancelled by customer", *cancelled.CancellationReason)
}

func TestCancelConfirmedChargesFee(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.CancellationFeePercent = 10 })
	bus := e.createBus(t)
	ctx := context.Background()

	booking := e.reserve(t, bus.ID, customer("cust-1"), 1)
	_, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)

	cancelled, err := e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(450), cancelled.RefundAmount)
}

func TestCancellationCutoff(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// now is 08:00; one bus leaves in 90 minutes, the other in 3 hours
	soon := e.createBus(t, func(r *models.CreateBusRequest) {
		r.BusNumber = "NB-0930"
		r.DepartureTime = "09:30"
	})
	later := e.createBus(t, func(r *models.CreateBusRequest) {
		r.BusNumber = "NB-1100"
		r.DepartureTime = "11:00"
	})

	reserveToday := func(busID string) *models.Booking {
		req := bookingRequest(busID, 1)
		req.TravelDate = "2026-11-02"
		booking, err := e.reservations.Reserve(ctx, req, customer("cust-1"))
		require.NoError(t, err)
		return booking
	}

	blocked := reserveToday(soon.ID)
	_, err := e.lifecycle.CancelBooking(ctx, blocked.ID, customer("cust-1"), e.clock.Now(), "")
	require.ErrorIs(t, err, models.ErrCancellationWindowClosed)

	var cutoff *models.CancellationWindowClosedError
	require.True(t, errors.As(err, &cutoff))
	assert.Equal(t, 2*time.Hour, cutoff.Cutoff)
	assert.True(t, cutoff.Departure.Equal(time.Date(2026, 11, 2, 9, 30, 0, 0, time.UTC)))

	held, err := e.availability.GetHeldSeats(ctx, soon.ID, "2026-11-02")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, held)

	allowed := reserveToday(later.ID)
	cancelled, err := e.lifecycle.CancelBooking(ctx, allowed.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
}

func TestCancelAuthorization(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	byCustomer := e.reserve(t, bus.ID, customer("cust-1"), 1)
	byAgent := e.reserve(t, bus.ID, agent("agent-1"), 2)

	_, err := e.lifecycle.CancelBooking(ctx, byCustomer.ID, customer("cust-2"), e.clock.Now(), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.lifecycle.CancelBooking(ctx, byCustomer.ID, agent("agent-1"), e.clock.Now(), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.lifecycle.CancelBooking(ctx, byAgent.ID, agent("agent-2"), e.clock.Now(), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.lifecycle.CancelBooking(ctx, byAgent.ID, agent("agent-1"), e.clock.Now(), "")
	assert.NoError(t, err)

	_, err = e.lifecycle.CancelBooking(ctx, byCustomer.ID, admin, e.clock.Now(), "")
	assert.NoError(t, err)
}

func TestCancelTwiceIsInvalidTransition(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	booking := e.reserve(t, bus.ID, customer("cust-1"), 1)
	_, err := e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)

	_, err = e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestCancelUnknownBooking(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.lifecycle.CancelBooking(context.Background(), "missing", admin, e.clock.Now(), "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConfirmPayment(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()
	booking := e.reserve(t, bus.ID, customer("cust-1"), 3)

	_, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", customer("cust-1"))
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.lifecycle.ConfirmPayment(ctx, booking.ID, "", paymentSystem)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	confirmed, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentReference)
	assert.Equal(t, "PAY-1", *confirmed.PaymentReference)
	assert.Nil(t, confirmed.ExpiresAt)
	require.NotNil(t, confirmed.ConfirmedAt)

	again, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)
	assert.Equal(t, confirmed.ConfirmedAt, again.ConfirmedAt)

	_, err = e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-2", paymentSystem)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	held, err := e.availability.GetHeldSeats(ctx, bus.ID, testTravelDate)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, held)
}

func TestConfirmCancelledBooking(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()
	booking := e.reserve(t, bus.ID, customer("cust-1"), 3)

	_, err := e.lifecycle.CancelBooking(ctx, booking.ID, customer("cust-1"), e.clock.Now(), "")
	require.NoError(t, err)

	_, err = e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", paymentSystem)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestConfirmAfterHoldLapsedBeforeSweep(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	booking := e.reserve(t, bus.ID, customer("cust-1"), 3)

	e.clock.Advance(20 * time.Minute)
	confirmed, err := e.lifecycle.ConfirmPayment(context.Background(), booking.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	expired, err := e.lifecycle.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestFailPayment(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	// departure inside the cancellation cutoff; payment failure ignores it
	bus := e.createBus(t, func(r *models.CreateBusRequest) { r.DepartureTime = "09:00" })

	req := bookingRequest(bus.ID, 4, 5)
	req.TravelDate = "2026-11-02"
	booking, err := e.reservations.Reserve(ctx, req, customer("cust-1"))
	require.NoError(t, err)

	_, err = e.lifecycle.FailPayment(ctx, booking.ID, "card declined", customer("cust-1"))
	assert.ErrorIs(t, err, models.ErrForbidden)

	failed, err := e.lifecycle.FailPayment(ctx, booking.ID, "card declined", paymentSystem)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, failed.Status)
	assert.Equal(t, int64(0), failed.RefundAmount)
	require.NotNil(t, failed.CancellationReason)
	assert.Equal(t, "card declined", *failed.CancellationReason)

	held, err := e.availability.GetHeldSeats(ctx, bus.ID, "2026-11-02")
	require.NoError(t, err)
	assert.Empty(t, held)

	again, err := e.lifecycle.FailPayment(ctx, booking.ID, "retry", paymentSystem)
	require.NoError(t, err)
	assert.Equal(t, "card declined", *again.CancellationReason)
}

func TestFailPaymentOnConfirmedBooking(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()
	booking := e.reserve(t, bus.ID, customer("cust-1"), 1)

	_, err := e.lifecycle.ConfirmPayment(ctx, booking.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)

	_, err = e.lifecycle.FailPayment(ctx, booking.ID, "", paymentSystem)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestExpirePendingReleasesSeats(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	stale := e.reserve(t, bus.ID, customer("cust-1"), 3)
	paid := e.reserve(t, bus.ID, customer("cust-2"), 4)
	_, err := e.lifecycle.ConfirmPayment(ctx, paid.ID, "PAY-1", paymentSystem)
	require.NoError(t, err)

	e.clock.Advance(10 * time.Minute)
	fresh := e.reserve(t, bus.ID, customer("cust-3"), 6)

	expired, err := e.lifecycle.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired, "nothing has outlived its hold yet")

	e.clock.Advance(6 * time.Minute)
	expired, err = e.lifecycle.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := e.lifecycle.GetBooking(ctx, stale.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)
	assert.Equal(t, int64(0), got.RefundAmount)

	got, err = e.lifecycle.GetBooking(ctx, fresh.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	held, err := e.availability.GetHeldSeats(ctx, bus.ID, testTravelDate)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, held)

	e.reserve(t, bus.ID, customer("cust-4"), 3)
}

func TestExpirePendingHonoursBatchSize(t *testing.T) {
	e := newTestEngine(t, func(c *EngineConfig) { c.ExpiryBatchSize = 2 })
	bus := e.createBus(t)
	ctx := context.Background()

	for seat := 1; seat <= 3; seat++ {
		e.reserve(t, bus.ID, customer("cust-1"), seat)
	}
	e.clock.Advance(time.Hour)

	expired, err := e.lifecycle.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	expired, err = e.lifecycle.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
}

func TestGetBookingAuthorization(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()
	booking := e.reserve(t, bus.ID, customer("cust-1"), 1)

	got, err := e.lifecycle.GetBooking(ctx, booking.ID, customer("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)

	_, err = e.lifecycle.GetBooking(ctx, booking.ID, customer("cust-2"))
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.lifecycle.GetBooking(ctx, booking.ID, paymentSystem)
	assert.NoError(t, err)

	_, err = e.lifecycle.GetBooking(ctx, "missing", admin)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListBookingsFilters(t *testing.T) {
	e := newTestEngine(t)
	bus := e.createBus(t)
	ctx := context.Background()

	e.reserve(t, bus.ID, customer("cust-1"), 1)
	e.reserve(t, bus.ID, agent("agent-1"), 2)

	all, err := e.lifecycle.ListBookings(ctx, models.BookingFilter{BusID: bus.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	agents, err := e.lifecycle.ListBookings(ctx, models.BookingFilter{CreatorRole: models.RoleAgent})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].CreatedBy)
}
