package services

import (
	"fmt"
	"time"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// parseClock converts "HH:MM" to minutes after midnight
func parseClock(value string) (int, error) {
	t, err := time.Parse(models.ClockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", models.ErrInvalidConfiguration, value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ValidateBookingWindow checks that the window's times parse and that the
// overnight flag agrees with them. A close time earlier than the open time is
// only accepted when the window was explicitly marked overnight.
func ValidateBookingWindow(w models.BookingWindow) error {
	open, err := parseClock(w.OpenTime)
	if err != nil {
		return err
	}
	closeAt, err := parseClock(w.CloseTime)
	if err != nil {
		return err
	}

	switch {
	case open > closeAt && !w.IsOvernight:
		return fmt.Errorf("%w: close time %s is before open time %s; mark the window as overnight to allow this",
			models.ErrInvalidConfiguration, w.CloseTime, w.OpenTime)
	case open <= closeAt && w.IsOvernight:
		return fmt.Errorf("%w: overnight window must close before it opens (got %s-%s)",
			models.ErrInvalidConfiguration, w.OpenTime, w.CloseTime)
	}
	return nil
}

// IsWindowOpen reports whether now falls inside the booking window, evaluated
// at minute precision in loc. Both bounds are inclusive. Equal open and close
// times mean the window never closes.
func IsWindowOpen(w models.BookingWindow, now time.Time, loc *time.Location) (bool, error) {
	if !w.IsActive {
		return false, nil
	}
	if err := ValidateBookingWindow(w); err != nil {
		return false, err
	}

	open, _ := parseClock(w.OpenTime)
	closeAt, _ := parseClock(w.CloseTime)

	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	switch {
	case open == closeAt:
		return true, nil
	case open < closeAt:
		return open <= current && current <= closeAt, nil
	default:
		return current >= open || current <= closeAt, nil
	}
}

// BookingWindowMessage describes the window's state for display
func BookingWindowMessage(w models.BookingWindow, isOpen bool) string {
	switch {
	case !w.IsActive:
		return "Booking is currently disabled for this bus"
	case w.OpenTime == w.CloseTime:
		return "Booking is open 24 hours"
	case isOpen:
		return fmt.Sprintf("Booking is open until %s", w.CloseTime)
	default:
		return fmt.Sprintf("Booking opens at %s and closes at %s", w.OpenTime, w.CloseTime)
	}
}
