package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Reservation engine error taxonomy. Every error that crosses the service
// boundary matches exactly one of these with errors.Is.
var (
	ErrInvalidConfiguration     = errors.New("invalid bus configuration")
	ErrWindowClosed             = errors.New("booking window is closed")
	ErrSeatConflict             = errors.New("requested seats are not available")
	ErrBusy                     = errors.New("seat map is busy, please retry")
	ErrCancellationWindowClosed = errors.New("cancellation window has closed")
	ErrNotFound                 = errors.New("not found")
	ErrInvalidSeatSelection     = errors.New("invalid seat selection")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrInvalidTransition        = errors.New("invalid booking status transition")
	ErrForbidden                = errors.New("operation not permitted for caller")
	ErrSeatConfigurationLocked  = errors.New("seat configuration cannot change while bookings exist")
)

// WindowClosedError carries the published booking hours.
type WindowClosedError struct {
	OpenTime  string
	CloseTime string
	IsActive  bool
}

func (e *WindowClosedError) Error() string {
	if !e.IsActive {
		return "booking is currently disabled for this bus"
	}
	return fmt.Sprintf("booking is open only between %s and %s", e.OpenTime, e.CloseTime)
}

func (e *WindowClosedError) Is(target error) bool { return target == ErrWindowClosed }

// SeatConflictError names the seats that were already held.
type SeatConflictError struct {
	Seats []int
}

// NewSeatConflictError returns a conflict error with the seats sorted.
func NewSeatConflictError(seats []int) *SeatConflictError {
	sorted := append([]int(nil), seats...)
	sort.Ints(sorted)
	return &SeatConflictError{Seats: sorted}
}

func (e *SeatConflictError) Error() string {
	parts := make([]string, len(e.Seats))
	for i, s := range e.Seats {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return fmt.Sprintf("seats already taken: %s", strings.Join(parts, ", "))
}

func (e *SeatConflictError) Is(target error) bool { return target == ErrSeatConflict }

// CancellationWindowClosedError reports the departure and the cutoff that was hit.
type CancellationWindowClosedError struct {
	Departure time.Time
	Cutoff    time.Duration
}

func (e *CancellationWindowClosedError) Error() string {
	return fmt.Sprintf("bookings cannot be cancelled less than %s before departure (%s)",
		e.Cutoff, e.Departure.Format("2006-01-02 15:04"))
}

func (e *CancellationWindowClosedError) Is(target error) bool {
	return target == ErrCancellationWindowClosed
}
