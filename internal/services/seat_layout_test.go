package services

import (
	"testing"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLayoutDeterministic(t *testing.T) {
	first, err := GenerateLayout(41, "2-2", 2, 3)
	require.NoError(t, err)
	second, err := GenerateLayout(41, "2-2", 2, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.Seats, 41)
	for i, seat := range first.Seats {
		assert.Equal(t, i+1, seat.SeatNumber)
	}

	// bench row, nine 2-2 rows, bench row
	assert.Equal(t, 11, first.TotalRows)
	require.Len(t, first.Rows, 11)
	assert.Len(t, first.Rows[0].BenchSeats, 2)
	assert.Len(t, first.Rows[10].BenchSeats, 3)
}

func TestGenerateLayoutPlacement(t *testing.T) {
	layout, err := GenerateLayout(41, "2-2", 2, 3)
	require.NoError(t, err)

	first := layout.Seats[0]
	assert.Equal(t, 0, first.Row)
	assert.True(t, first.IsSpecialRow)
	assert.Equal(t, models.SeatBlockFull, first.Block)

	// seat 3 opens the first regular row
	row1 := layout.Rows[1]
	assert.False(t, row1.IsSpecialRow)
	require.Len(t, row1.LeftSeats, 2)
	require.Len(t, row1.RightSeats, 2)
	assert.Equal(t, 3, row1.LeftSeats[0].SeatNumber)
	assert.Equal(t, 0, row1.LeftSeats[0].Column)
	assert.True(t, row1.LeftSeats[0].IsWindowSeat)
	assert.Equal(t, 4, row1.LeftSeats[1].SeatNumber)
	assert.False(t, row1.LeftSeats[1].IsWindowSeat)

	// column 2 is the aisle
	assert.Equal(t, 5, row1.RightSeats[0].SeatNumber)
	assert.Equal(t, 3, row1.RightSeats[0].Column)
	assert.Equal(t, 6, row1.RightSeats[1].SeatNumber)
	assert.Equal(t, 4, row1.RightSeats[1].Column)
	assert.True(t, row1.RightSeats[1].IsWindowSeat)

	last := layout.Rows[10].BenchSeats
	assert.Equal(t, []int{39, 40, 41}, []int{last[0].SeatNumber, last[1].SeatNumber, last[2].SeatNumber})
}

func TestGenerateLayoutWithoutSpecialRows(t *testing.T) {
	layout, err := GenerateLayout(30, "2-1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 10, layout.TotalRows)
	for _, row := range layout.Rows {
		assert.False(t, row.IsSpecialRow)
		assert.Empty(t, row.BenchSeats)
	}
	assert.Equal(t, 30, layout.Seats[len(layout.Seats)-1].SeatNumber)
}

func TestGenerateLayoutInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		arrangement string
		first, last int
	}{
		{"fractional last row", 42, "2-2", 2, 3},
		{"special rows exceed total", 4, "2-2", 3, 3},
		{"zero total", 0, "2-2", 0, 0},
		{"negative first row", 40, "2-2", -1, 0},
		{"missing block", 40, "2", 0, 0},
		{"zero block", 40, "2-0", 0, 0},
		{"not numeric", 40, "a-b", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateLayout(tt.total, tt.arrangement, tt.first, tt.last)
			assert.ErrorIs(t, err, models.ErrInvalidConfiguration)
		})
	}
}
