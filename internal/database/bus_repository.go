package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

const busColumns = `
	id, bus_number, source, destination, departure_time, arrival_time,
	total_seats, seat_arrangement, first_row_seats, last_row_seats,
	booking_open_time, booking_close_time, is_overnight_window, advance_booking_days,
	fare_per_seat, is_active, created_at, updated_at`

// BusRepository handles database operations for buses
type BusRepository struct {
	db DB
}

// NewBusRepository creates a new BusRepository
func NewBusRepository(db DB) *BusRepository {
	return &BusRepository{db: db}
}

// CreateBus creates a new bus
func (r *BusRepository) CreateBus(ctx context.Context, bus *models.Bus) error {
	if bus.ID == "" {
		bus.ID = uuid.New().String()
	}

	query := `
		INSERT INTO buses (
			id, bus_number, source, destination, departure_time, arrival_time,
			total_seats, seat_arrangement, first_row_seats, last_row_seats,
			booking_open_time, booking_close_time, is_overnight_window, advance_booking_days,
			fare_per_seat, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		bus.ID, bus.BusNumber, bus.Source, bus.Destination, bus.DepartureTime, bus.ArrivalTime,
		bus.TotalSeats, bus.SeatArrangement, bus.FirstRowSeats, bus.LastRowSeats,
		bus.BookingOpenTime, bus.BookingCloseTime, bus.IsOvernightWindow, bus.AdvanceBookingDays,
		bus.FarePerSeat, bus.IsActive,
	).Scan(&bus.CreatedAt, &bus.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: bus number %s already exists", models.ErrInvalidRequest, bus.BusNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to create bus: %w", err)
	}
	return nil
}

// GetBus retrieves a bus by ID
func (r *BusRepository) GetBus(ctx context.Context, busID string) (*models.Bus, error) {
	if _, err := uuid.Parse(busID); err != nil {
		return nil, fmt.Errorf("bus %s: %w", busID, models.ErrNotFound)
	}

	query := `SELECT ` + busColumns + ` FROM buses WHERE id = $1`

	bus, err := scanBus(r.db.QueryRowContext(ctx, query, busID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bus %s: %w", busID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bus: %w", err)
	}
	return bus, nil
}

// ListBuses retrieves all buses ordered by bus number
func (r *BusRepository) ListBuses(ctx context.Context, activeOnly bool) ([]*models.Bus, error) {
	query := `SELECT ` + busColumns + ` FROM buses`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY bus_number`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list buses: %w", err)
	}
	defer rows.Close()

	buses := make([]*models.Bus, 0)
	for rows.Next() {
		bus, err := scanBus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bus: %w", err)
		}
		buses = append(buses, bus)
	}
	return buses, rows.Err()
}

// UpdateBusLocked takes a row lock on the bus, which waits out and then
// blocks the FOR SHARE read every reservation makes, and stores the bus fn
// returns in the same transaction
func (r *BusRepository) UpdateBusLocked(ctx context.Context, busID string, fn func(tx BusTx) (*models.Bus, error)) (*models.Bus, error) {
	if _, err := uuid.Parse(busID); err != nil {
		return nil, fmt.Errorf("bus %s: %w", busID, models.ErrNotFound)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + busColumns + ` FROM buses WHERE id = $1 FOR UPDATE`
	current, err := scanBus(tx.QueryRowContext(ctx, query, busID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bus %s: %w", busID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock bus: %w", err)
	}

	updated, err := fn(&pgBusTx{ctx: ctx, tx: tx, bus: current})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return current, nil
	}

	if err := updateBus(ctx, tx, updated); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit bus update: %w", err)
	}
	return updated, nil
}

type pgBusTx struct {
	ctx context.Context
	tx  *sqlx.Tx
	bus *models.Bus
}

func (t *pgBusTx) Current() *models.Bus {
	c := *t.bus
	return &c
}

func (t *pgBusTx) CountActiveBookingsFrom(fromDate string) (int, error) {
	return countActiveBookings(t.ctx, t.tx, t.bus.ID, fromDate)
}

// updateBus overwrites the mutable fields of a bus
func updateBus(ctx context.Context, exec sqlx.ExecerContext, bus *models.Bus) error {
	query := `
		UPDATE buses SET
			bus_number = $2, source = $3, destination = $4,
			departure_time = $5, arrival_time = $6,
			total_seats = $7, seat_arrangement = $8, first_row_seats = $9, last_row_seats = $10,
			booking_open_time = $11, booking_close_time = $12, is_overnight_window = $13,
			advance_booking_days = $14, fare_per_seat = $15, is_active = $16,
			updated_at = $17
		WHERE id = $1`

	bus.UpdatedAt = time.Now()
	result, err := exec.ExecContext(ctx, query,
		bus.ID, bus.BusNumber, bus.Source, bus.Destination,
		bus.DepartureTime, bus.ArrivalTime,
		bus.TotalSeats, bus.SeatArrangement, bus.FirstRowSeats, bus.LastRowSeats,
		bus.BookingOpenTime, bus.BookingCloseTime, bus.IsOvernightWindow,
		bus.AdvanceBookingDays, bus.FarePerSeat, bus.IsActive,
		bus.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: bus number %s already exists", models.ErrInvalidRequest, bus.BusNumber)
	}
	if err != nil {
		return fmt.Errorf("failed to update bus: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("bus %s: %w", bus.ID, models.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBus(row rowScanner) (*models.Bus, error) {
	bus := &models.Bus{}
	err := row.Scan(
		&bus.ID, &bus.BusNumber, &bus.Source, &bus.Destination, &bus.DepartureTime, &bus.ArrivalTime,
		&bus.TotalSeats, &bus.SeatArrangement, &bus.FirstRowSeats, &bus.LastRowSeats,
		&bus.BookingOpenTime, &bus.BookingCloseTime, &bus.IsOvernightWindow, &bus.AdvanceBookingDays,
		&bus.FarePerSeat, &bus.IsActive, &bus.CreatedAt, &bus.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return bus, nil
}
