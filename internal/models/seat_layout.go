package models

// SeatKey identifies the contended resource: the seat map of one bus on one
// travel date.
type SeatKey struct {
	BusID      string `json:"bus_id"`
	TravelDate string `json:"travel_date"`
}

func (k SeatKey) String() string {
	return k.BusID + "/" + k.TravelDate
}

// Seat blocks within a row
const (
	SeatBlockLeft  = "left"
	SeatBlockRight = "right"
	SeatBlockFull  = "full" // special first/last rows have no aisle split
)

// SeatPlacement is one numbered seat in the derived layout
type SeatPlacement struct {
	SeatNumber   int    `json:"seat_number"`
	Row          int    `json:"row"`
	Column       int    `json:"column"` // aisle occupies a column in regular rows
	Block        string `json:"block"`
	IsSpecialRow bool   `json:"is_special_row"`
	IsWindowSeat bool   `json:"is_window_seat"`
}

// SeatRow groups the seats of one row for display. Special rows have no
// aisle, so their seats are listed in BenchSeats only.
type SeatRow struct {
	Row          int             `json:"row"`
	IsSpecialRow bool            `json:"is_special_row"`
	LeftSeats    []SeatPlacement `json:"left_seats,omitempty"`
	RightSeats   []SeatPlacement `json:"right_seats,omitempty"`
	BenchSeats   []SeatPlacement `json:"bench_seats,omitempty"`
}

// SeatLayout is derived from a bus's seat configuration; it is never stored
type SeatLayout struct {
	TotalSeats  int             `json:"total_seats"`
	TotalRows   int             `json:"total_rows"`
	Arrangement string          `json:"arrangement"`
	Seats       []SeatPlacement `json:"seats"`
	Rows        []SeatRow       `json:"rows"`
}

// AvailableSeatsResponse is returned by the seat availability endpoint
type AvailableSeatsResponse struct {
	BusID          string     `json:"bus_id"`
	TravelDate     string     `json:"travel_date"`
	Layout         SeatLayout `json:"seat_layout"`
	HeldSeats      []int      `json:"held_seats"`
	AvailableCount int        `json:"available_count"`
}
