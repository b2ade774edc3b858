package models

// BookingWindow is the daily wall-clock range in which a bus accepts
// reservations. It has no lifecycle of its own and is recomputed from the Bus.
type BookingWindow struct {
	OpenTime    string `json:"open_time"`  // "HH:MM"
	CloseTime   string `json:"close_time"` // "HH:MM"
	IsActive    bool   `json:"is_active"`
	IsOvernight bool   `json:"is_overnight"`
}

// BookingStatusResponse reports whether a bus is currently accepting bookings
type BookingStatusResponse struct {
	BusID     string `json:"bus_id"`
	IsOpen    bool   `json:"is_open"`
	Message   string `json:"message"`
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}
