package database

import (
	"context"
	"errors"
	"time"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// ErrDuplicateReference is returned by SeatTx.CreateBooking when another
// booking already carries the reference. The transaction cannot be reused.
var ErrDuplicateReference = errors.New("booking reference already exists")

// BusStore reads and writes bus records. Only the admin path writes.
type BusStore interface {
	GetBus(ctx context.Context, busID string) (*models.Bus, error)
	ListBuses(ctx context.Context, activeOnly bool) ([]*models.Bus, error)
	CreateBus(ctx context.Context, bus *models.Bus) error
	// UpdateBusLocked locks the bus against reservations on every travel
	// date, then stores whatever fn returns. A nil bus from fn writes nothing.
	UpdateBusLocked(ctx context.Context, busID string, fn func(tx BusTx) (*models.Bus, error)) (*models.Bus, error)
}

// BusTx is the view of one bus inside UpdateBusLocked.
type BusTx interface {
	Current() *models.Bus
	CountActiveBookingsFrom(fromDate string) (int, error)
}

// SeatStore owns bookings and their seat holds.
//
// Every mutation of a (bus, travel date) seat map goes through WithSeatLock,
// which serializes callers on that pair only. The lock must live in the
// datastore whenever more than one process serves traffic.
type SeatStore interface {
	// HeldSeats returns the committed seat holds for the pair, sorted.
	HeldSeats(ctx context.Context, key models.SeatKey) ([]int, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	// ListExpiredPending returns pending bookings whose hold expired at or before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	// CountActiveBookingsFrom counts non-cancelled bookings on or after fromDate.
	CountActiveBookingsFrom(ctx context.Context, busID, fromDate string) (int, error)
	// WithSeatLock runs fn while holding the pair's lock. Writes made through
	// the SeatTx are committed only if fn returns nil. Failing to acquire the
	// lock before ctx expires yields models.ErrBusy.
	WithSeatLock(ctx context.Context, key models.SeatKey, fn func(tx SeatTx) error) error
}

// SeatTx is the view of one seat map inside the lock.
type SeatTx interface {
	// Bus re-reads the seat map's bus and keeps its configuration from
	// changing until the transaction ends.
	Bus() (*models.Bus, error)
	// HeldSeats maps held seat numbers to the owning booking id.
	HeldSeats() (map[int]string, error)
	GetBooking(bookingID string) (*models.Booking, error)
	// CreateBooking inserts the booking and a hold for each of its seats.
	CreateBooking(booking *models.Booking) error
	UpdateBooking(booking *models.Booking) error
	// ReleaseSeats drops every hold owned by the booking.
	ReleaseSeats(bookingID string) (int, error)
}
