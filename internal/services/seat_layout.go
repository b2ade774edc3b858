package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// ParseArrangement splits an "L-R" arrangement into its block sizes
func ParseArrangement(arrangement string) (left, right int, err error) {
	parts := strings.Split(strings.TrimSpace(arrangement), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: seat arrangement %q must look like 2-2", models.ErrInvalidConfiguration, arrangement)
	}
	left, errL := strconv.Atoi(parts[0])
	right, errR := strconv.Atoi(parts[1])
	if errL != nil || errR != nil || left < 1 || right < 1 {
		return 0, 0, fmt.Errorf("%w: seat arrangement %q must have positive block sizes", models.ErrInvalidConfiguration, arrangement)
	}
	return left, right, nil
}

// GenerateLayout derives the numbered seat layout of a bus.
//
// Row 0 holds firstRowSeats and the final row holds lastRowSeats; neither has
// an aisle, and a count of 0 means the row does not exist. Every row between
// them seats L seats, an aisle, then R seats. Numbers run 1..totalSeats row by
// row, left to right, skipping the aisle. The result depends only on the
// arguments, so any two callers agree on every seat number.
func GenerateLayout(totalSeats int, arrangement string, firstRowSeats, lastRowSeats int) (*models.SeatLayout, error) {
	if totalSeats <= 0 {
		return nil, fmt.Errorf("%w: total seats must be positive", models.ErrInvalidConfiguration)
	}
	if firstRowSeats < 0 || lastRowSeats < 0 {
		return nil, fmt.Errorf("%w: first and last row seat counts must not be negative", models.ErrInvalidConfiguration)
	}

	left, right, err := ParseArrangement(arrangement)
	if err != nil {
		return nil, err
	}

	perRow := left + right
	middle := totalSeats - firstRowSeats - lastRowSeats
	if middle < 0 {
		return nil, fmt.Errorf("%w: first (%d) and last (%d) rows exceed %d total seats",
			models.ErrInvalidConfiguration, firstRowSeats, lastRowSeats, totalSeats)
	}
	if middle%perRow != 0 {
		return nil, fmt.Errorf("%w: %d seats between the first and last rows do not fill whole %s rows",
			models.ErrInvalidConfiguration, middle, arrangement)
	}

	layout := &models.SeatLayout{
		TotalSeats:  totalSeats,
		Arrangement: arrangement,
		Seats:       make([]models.SeatPlacement, 0, totalSeats),
	}

	seatNumber := 1
	row := 0

	addBenchRow := func(count int) {
		r := models.SeatRow{Row: row, IsSpecialRow: true}
		for col := 0; col < count; col++ {
			seat := models.SeatPlacement{
				SeatNumber:   seatNumber,
				Row:          row,
				Column:       col,
				Block:        models.SeatBlockFull,
				IsSpecialRow: true,
				IsWindowSeat: col == 0 || col == count-1,
			}
			layout.Seats = append(layout.Seats, seat)
			r.BenchSeats = append(r.BenchSeats, seat)
			seatNumber++
		}
		layout.Rows = append(layout.Rows, r)
		row++
	}

	if firstRowSeats > 0 {
		addBenchRow(firstRowSeats)
	}

	for i := 0; i < middle/perRow; i++ {
		r := models.SeatRow{Row: row}
		for col := 0; col < left; col++ {
			seat := models.SeatPlacement{
				SeatNumber:   seatNumber,
				Row:          row,
				Column:       col,
				Block:        models.SeatBlockLeft,
				IsWindowSeat: col == 0,
			}
			layout.Seats = append(layout.Seats, seat)
			r.LeftSeats = append(r.LeftSeats, seat)
			seatNumber++
		}
		// column `left` is the aisle
		for col := 0; col < right; col++ {
			seat := models.SeatPlacement{
				SeatNumber:   seatNumber,
				Row:          row,
				Column:       left + 1 + col,
				Block:        models.SeatBlockRight,
				IsWindowSeat: col == right-1,
			}
			layout.Seats = append(layout.Seats, seat)
			r.RightSeats = append(r.RightSeats, seat)
			seatNumber++
		}
		layout.Rows = append(layout.Rows, r)
		row++
	}

	if lastRowSeats > 0 {
		addBenchRow(lastRowSeats)
	}

	layout.TotalRows = row
	return layout, nil
}
