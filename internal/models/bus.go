package models

import (
	"time"
)

// Wall-clock and calendar layouts used across the engine.
const (
	ClockLayout = "15:04"
	DateLayout  = "2006-01-02"
)

// Bus represents a bus and its booking configuration. Only the admin
// collaborator writes these records; the reservation engine reads them.
type Bus struct {
	ID          string `json:"id" db:"id"`
	BusNumber   string `json:"bus_number" db:"bus_number"`
	Source      string `json:"source" db:"source"`
	Destination string `json:"destination" db:"destination"`

	// Schedule, "HH:MM" in the operating timezone
	DepartureTime string `json:"departure_time" db:"departure_time"`
	ArrivalTime   string `json:"arrival_time" db:"arrival_time"`

	// Seat configuration
	TotalSeats      int    `json:"total_seats" db:"total_seats"`
	SeatArrangement string `json:"seat_arrangement" db:"seat_arrangement"` // e.g. "2-2"
	FirstRowSeats   int    `json:"first_row_seats" db:"first_row_seats"`
	LastRowSeats    int    `json:"last_row_seats" db:"last_row_seats"`

	// Booking window
	BookingOpenTime    string `json:"booking_open_time" db:"booking_open_time"`
	BookingCloseTime   string `json:"booking_close_time" db:"booking_close_time"`
	IsOvernightWindow  bool   `json:"is_overnight_window" db:"is_overnight_window"`
	AdvanceBookingDays int    `json:"advance_booking_days" db:"advance_booking_days"`

	FarePerSeat int64 `json:"fare_per_seat" db:"fare_per_seat"`
	IsActive    bool  `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BookingWindow returns the bus's booking window value object.
func (b *Bus) BookingWindow() BookingWindow {
	return BookingWindow{
		OpenTime:    b.BookingOpenTime,
		CloseTime:   b.BookingCloseTime,
		IsActive:    b.IsActive,
		IsOvernight: b.IsOvernightWindow,
	}
}

// SeatConfigEquals reports whether two buses share the same seat configuration.
func (b *Bus) SeatConfigEquals(other *Bus) bool {
	return b.TotalSeats == other.TotalSeats &&
		b.SeatArrangement == other.SeatArrangement &&
		b.FirstRowSeats == other.FirstRowSeats &&
		b.LastRowSeats == other.LastRowSeats
}

// DepartureAt resolves the departure instant for a travel date in loc.
func (b *Bus) DepartureAt(travelDate string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, travelDate+" "+b.DepartureTime, loc)
}

// CreateBusRequest represents the admin request to register a bus
type CreateBusRequest struct {
	BusNumber          string `json:"bus_number" binding:"required"`
	Source             string `json:"source" binding:"required"`
	Destination        string `json:"destination" binding:"required"`
	DepartureTime      string `json:"departure_time" binding:"required"`
	ArrivalTime        string `json:"arrival_time" binding:"required"`
	TotalSeats         int    `json:"total_seats" binding:"required,gt=0"`
	SeatArrangement    string `json:"seat_arrangement" binding:"required"`
	FirstRowSeats      int    `json:"first_row_seats"`
	LastRowSeats       int    `json:"last_row_seats"`
	BookingOpenTime    string `json:"booking_open_time" binding:"required"`
	BookingCloseTime   string `json:"booking_close_time" binding:"required"`
	IsOvernightWindow  bool   `json:"is_overnight_window"`
	AdvanceBookingDays int    `json:"advance_booking_days"`
	FarePerSeat        int64  `json:"fare_per_seat"`
	IsActive           *bool  `json:"is_active,omitempty"`
}

// ToBus builds a Bus from the request. New buses are active unless stated.
func (req *CreateBusRequest) ToBus() *Bus {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &Bus{
		BusNumber:          req.BusNumber,
		Source:             req.Source,
		Destination:        req.Destination,
		DepartureTime:      req.DepartureTime,
		ArrivalTime:        req.ArrivalTime,
		TotalSeats:         req.TotalSeats,
		SeatArrangement:    req.SeatArrangement,
		FirstRowSeats:      req.FirstRowSeats,
		LastRowSeats:       req.LastRowSeats,
		BookingOpenTime:    req.BookingOpenTime,
		BookingCloseTime:   req.BookingCloseTime,
		IsOvernightWindow:  req.IsOvernightWindow,
		AdvanceBookingDays: req.AdvanceBookingDays,
		FarePerSeat:        req.FarePerSeat,
		IsActive:           active,
	}
}

// UpdateBusRequest represents a partial admin update of a bus
type UpdateBusRequest struct {
	BusNumber          *string `json:"bus_number,omitempty"`
	Source             *string `json:"source,omitempty"`
	Destination        *string `json:"destination,omitempty"`
	DepartureTime      *string `json:"departure_time,omitempty"`
	ArrivalTime        *string `json:"arrival_time,omitempty"`
	TotalSeats         *int    `json:"total_seats,omitempty"`
	SeatArrangement    *string `json:"seat_arrangement,omitempty"`
	FirstRowSeats      *int    `json:"first_row_seats,omitempty"`
	LastRowSeats       *int    `json:"last_row_seats,omitempty"`
	BookingOpenTime    *string `json:"booking_open_time,omitempty"`
	BookingCloseTime   *string `json:"booking_close_time,omitempty"`
	IsOvernightWindow  *bool   `json:"is_overnight_window,omitempty"`
	AdvanceBookingDays *int    `json:"advance_booking_days,omitempty"`
	FarePerSeat        *int64  `json:"fare_per_seat,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
}

// ApplyTo returns a copy of bus with the non-nil fields of the request applied.
func (req *UpdateBusRequest) ApplyTo(bus *Bus) *Bus {
	updated := *bus
	if req.BusNumber != nil {
		updated.BusNumber = *req.BusNumber
	}
	if req.Source != nil {
		updated.Source = *req.Source
	}
	if req.Destination != nil {
		updated.Destination = *req.Destination
	}
	if req.DepartureTime != nil {
		updated.DepartureTime = *req.DepartureTime
	}
	if req.ArrivalTime != nil {
		updated.ArrivalTime = *req.ArrivalTime
	}
	if req.TotalSeats != nil {
		updated.TotalSeats = *req.TotalSeats
	}
	if req.SeatArrangement != nil {
		updated.SeatArrangement = *req.SeatArrangement
	}
	if req.FirstRowSeats != nil {
		updated.FirstRowSeats = *req.FirstRowSeats
	}
	if req.LastRowSeats != nil {
		updated.LastRowSeats = *req.LastRowSeats
	}
	if req.BookingOpenTime != nil {
		updated.BookingOpenTime = *req.BookingOpenTime
	}
	if req.BookingCloseTime != nil {
		updated.BookingCloseTime = *req.BookingCloseTime
	}
	if req.IsOvernightWindow != nil {
		updated.IsOvernightWindow = *req.IsOvernightWindow
	}
	if req.AdvanceBookingDays != nil {
		updated.AdvanceBookingDays = *req.AdvanceBookingDays
	}
	if req.FarePerSeat != nil {
		updated.FarePerSeat = *req.FarePerSeat
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	return &updated
}
