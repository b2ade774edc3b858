package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// PostgreSQL error codes the seat store cares about
const (
	pqUniqueViolation   = "23505"
	pqLockNotAvailable  = "55P03"
	pqQueryCanceled     = "57014"
	defaultListingLimit = 50
	maxListingLimit     = 500
)

// bookingReferenceConstraint is PostgreSQL's default name for the UNIQUE
// constraint on bookings.booking_reference
const bookingReferenceConstraint = "bookings_booking_reference_key"

var bookingColumnList = []string{
	"id", "booking_reference", "bus_id", "travel_date", "seat_numbers",
	"passenger_name", "passenger_age", "passenger_gender", "passenger_phone", "passenger_email",
	"status", "total_amount", "commission_amount", "refund_amount",
	"creator_role", "created_by", "payment_reference",
	"expires_at", "confirmed_at", "cancelled_at", "cancellation_reason",
	"created_at", "updated_at",
}

var bookingColumns = strings.Join(bookingColumnList, ", ")

// SeatRepository is the PostgreSQL seat store. The per (bus, travel date)
// lock is a transaction-scoped advisory lock, so it is shared by every
// process connected to the same database and released on commit or rollback.
type SeatRepository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewSeatRepository creates a new SeatRepository. lockTimeout bounds how long
// WithSeatLock waits for a contended seat map.
func NewSeatRepository(db *sqlx.DB, lockTimeout time.Duration) *SeatRepository {
	return &SeatRepository{db: db, lockTimeout: lockTimeout}
}

// HeldSeats returns the committed holds for a seat map
func (r *SeatRepository) HeldSeats(ctx context.Context, key models.SeatKey) ([]int, error) {
	query := `
		SELECT seat_number FROM seat_holds
		WHERE bus_id = $1 AND travel_date = $2
		ORDER BY seat_number`

	seats := make([]int, 0)
	if err := r.db.SelectContext(ctx, &seats, query, key.BusID, key.TravelDate); err != nil {
		return nil, fmt.Errorf("failed to get held seats: %w", err)
	}
	return seats, nil
}

// GetBooking retrieves a booking by ID
func (r *SeatRepository) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return getBooking(ctx, r.db, bookingID)
}

// ListBookings lists bookings matching the filter, newest first
func (r *SeatRepository) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	builder := sq.Select(bookingColumnList...).
		From("bookings").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.BusID != "" {
		builder = builder.Where(sq.Eq{"bus_id": filter.BusID})
	}
	if filter.TravelDate != "" {
		builder = builder.Where(sq.Eq{"travel_date": filter.TravelDate})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.CreatorRole != "" {
		builder = builder.Where(sq.Eq{"creator_role": string(filter.CreatorRole)})
	}
	if filter.CreatedBy != "" {
		builder = builder.Where(sq.Eq{"created_by": filter.CreatedBy})
	}

	builder = builder.Limit(uint64(listingLimit(filter.Limit)))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build booking query: %w", err)
	}

	return queryBookings(ctx, r.db, query, args...)
}

// ListExpiredPending returns pending bookings whose hold has lapsed, oldest first
func (r *SeatRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`

	return queryBookings(ctx, r.db, query, now, limit)
}

// CountActiveBookingsFrom counts pending and confirmed bookings on or after a date
func (r *SeatRepository) CountActiveBookingsFrom(ctx context.Context, busID, fromDate string) (int, error) {
	return countActiveBookings(ctx, r.db, busID, fromDate)
}

func countActiveBookings(ctx context.Context, q sqlx.QueryerContext, busID, fromDate string) (int, error) {
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE bus_id = $1 AND travel_date >= $2 AND status IN ('pending', 'confirmed')`

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, busID, fromDate); err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return count, nil
}

// WithSeatLock runs fn inside a transaction holding the seat map's advisory lock
func (r *SeatRepository) WithSeatLock(ctx context.Context, key models.SeatKey, fn func(tx SeatTx) error) error {
	day, err := travelDay(key.TravelDate)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translateLockError(ctx, key, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	// SET cannot take bind parameters
	timeout := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return translateLockError(ctx, key, fmt.Errorf("failed to set lock timeout: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), $2)`, key.BusID, day); err != nil {
		return translateLockError(ctx, key, fmt.Errorf("failed to lock seat map: %w", err))
	}

	if err := fn(&pgSeatTx{ctx: ctx, tx: tx, key: key}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seat transaction: %w", err)
	}
	return nil
}

// pgSeatTx is the SeatTx view of a locked transaction
type pgSeatTx struct {
	ctx context.Context
	tx  *sqlx.Tx
	key models.SeatKey
}

// Bus takes a share lock on the bus row. UpdateBusLocked's FOR UPDATE waits
// for it, so the configuration read here holds until commit.
func (t *pgSeatTx) Bus() (*models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses WHERE id = $1 FOR SHARE`

	bus, err := scanBus(t.tx.QueryRowContext(t.ctx, query, t.key.BusID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bus %s: %w", t.key.BusID, models.ErrNotFound)
	}
	if err != nil {
		return nil, translateLockError(t.ctx, t.key, fmt.Errorf("failed to lock bus: %w", err))
	}
	return bus, nil
}

func (t *pgSeatTx) HeldSeats() (map[int]string, error) {
	query := `
		SELECT seat_number, booking_id FROM seat_holds
		WHERE bus_id = $1 AND travel_date = $2`

	rows, err := t.tx.QueryContext(t.ctx, query, t.key.BusID, t.key.TravelDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get held seats: %w", err)
	}
	defer rows.Close()

	held := make(map[int]string)
	for rows.Next() {
		var seat int
		var bookingID string
		if err := rows.Scan(&seat, &bookingID); err != nil {
			return nil, fmt.Errorf("failed to scan seat hold: %w", err)
		}
		held[seat] = bookingID
	}
	return held, rows.Err()
}

func (t *pgSeatTx) GetBooking(bookingID string) (*models.Booking, error) {
	return getBooking(t.ctx, t.tx, bookingID)
}

func (t *pgSeatTx) CreateBooking(booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, booking_reference, bus_id, travel_date, seat_numbers,
			passenger_name, passenger_age, passenger_gender, passenger_phone, passenger_email,
			status, total_amount, commission_amount, refund_amount,
			creator_role, created_by, payment_reference,
			expires_at, confirmed_at, cancelled_at, cancellation_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)`

	p := booking.Passenger
	_, err := t.tx.ExecContext(t.ctx, query,
		booking.ID, booking.BookingReference, booking.BusID, booking.TravelDate, booking.SeatNumbers,
		p.Name, p.Age, p.Gender, p.Phone, p.Email,
		booking.Status, booking.TotalAmount, booking.CommissionAmount, booking.RefundAmount,
		booking.CreatorRole, booking.CreatedBy, booking.PaymentReference,
		booking.ExpiresAt, booking.ConfirmedAt, booking.CancelledAt, booking.CancellationReason,
		booking.CreatedAt, booking.UpdatedAt,
	)
	if uniqueConstraint(err) == bookingReferenceConstraint {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, booking.BookingReference)
	}
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	holds := `
		INSERT INTO seat_holds (bus_id, travel_date, seat_number, booking_id)
		SELECT $1, $2, unnest($3::int[]), $4`

	_, err = t.tx.ExecContext(t.ctx, holds, booking.BusID, booking.TravelDate, booking.SeatNumbers, booking.ID)
	if isUniqueViolation(err) {
		return models.NewSeatConflictError(booking.SeatNumbers)
	}
	if err != nil {
		return fmt.Errorf("failed to hold seats: %w", err)
	}
	return nil
}

func (t *pgSeatTx) UpdateBooking(booking *models.Booking) error {
	query := `
		UPDATE bookings SET
			status = $2, payment_reference = $3, refund_amount = $4,
			expires_at = $5, confirmed_at = $6, cancelled_at = $7,
			cancellation_reason = $8, updated_at = $9
		WHERE id = $1`

	result, err := t.tx.ExecContext(t.ctx, query,
		booking.ID, booking.Status, booking.PaymentReference, booking.RefundAmount,
		booking.ExpiresAt, booking.ConfirmedAt, booking.CancelledAt,
		booking.CancellationReason, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("booking %s: %w", booking.ID, models.ErrNotFound)
	}
	return nil
}

func (t *pgSeatTx) ReleaseSeats(bookingID string) (int, error) {
	result, err := t.tx.ExecContext(t.ctx, `DELETE FROM seat_holds WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func getBooking(ctx context.Context, q sqlx.QueryerContext, bookingID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(q.QueryRowxContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func queryBookings(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	b := &models.Booking{}
	var travelDate time.Time
	err := row.Scan(
		&b.ID, &b.BookingReference, &b.BusID, &travelDate, &b.SeatNumbers,
		&b.Passenger.Name, &b.Passenger.Age, &b.Passenger.Gender, &b.Passenger.Phone, &b.Passenger.Email,
		&b.Status, &b.TotalAmount, &b.CommissionAmount, &b.RefundAmount,
		&b.CreatorRole, &b.CreatedBy, &b.PaymentReference,
		&b.ExpiresAt, &b.ConfirmedAt, &b.CancelledAt, &b.CancellationReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.TravelDate = travelDate.Format(models.DateLayout)
	return b, nil
}

// travelDay maps a travel date onto the advisory lock's second key
func travelDay(travelDate string) (int32, error) {
	d, err := time.Parse(models.DateLayout, travelDate)
	if err != nil {
		return 0, fmt.Errorf("%w: travel date %q must be YYYY-MM-DD", models.ErrInvalidRequest, travelDate)
	}
	return int32(d.Unix() / 86400), nil
}

func listingLimit(limit int) int {
	if limit <= 0 {
		return defaultListingLimit
	}
	if limit > maxListingLimit {
		return maxListingLimit
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// uniqueConstraint names the constraint a unique violation hit, or "" for
// any other error
func uniqueConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return pqErr.Constraint
	}
	return ""
}

// translateLockError reports lock waits that ran out of time as ErrBusy
func translateLockError(ctx context.Context, key models.SeatKey, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: seat map %s: %v", models.ErrBusy, key, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == pqLockNotAvailable || pqErr.Code == pqQueryCanceled) {
		return fmt.Errorf("%w: seat map %s: %v", models.ErrBusy, key, err)
	}
	return err
}
