package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Role is the caller role supplied by the authentication collaborator
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system" // payment collaborator, background jobs
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor identifies who is performing an operation. It is always passed
// explicitly; the engine never reads identity from ambient state.
type Actor struct {
	UserID    string
	Role      Role
	IPAddress string
	UserAgent string
}

// Gender values accepted for passengers
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderOther  = "other"
)

// PassengerDetails holds the traveller information captured at reservation
type PassengerDetails struct {
	Name   string  `json:"name" binding:"required"`
	Age    int     `json:"age"`
	Gender string  `json:"gender" binding:"required"`
	Phone  *string `json:"phone,omitempty"`
	Email  *string `json:"email,omitempty"`
}

// Validate validates the passenger details
func (p *PassengerDetails) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("passenger name is required")
	}
	if p.Age < 0 || p.Age > 120 {
		return errors.New("passenger age must be between 0 and 120")
	}
	switch strings.ToLower(p.Gender) {
	case GenderMale, GenderFemale, GenderOther:
	default:
		return fmt.Errorf("invalid passenger gender %q: must be male, female, or other", p.Gender)
	}
	return nil
}

// Booking represents a seat reservation for one bus on one travel date.
// Bookings are never deleted; cancellation is a status change.
type Booking struct {
	ID                 string           `json:"id" db:"id"`
	BookingReference   string           `json:"booking_reference" db:"booking_reference"`
	BusID              string           `json:"bus_id" db:"bus_id"`
	TravelDate         string           `json:"travel_date" db:"travel_date"`
	SeatNumbers        SeatNumbers      `json:"seat_numbers" db:"seat_numbers"`
	Passenger          PassengerDetails `json:"passenger" db:"-"`
	Status             BookingStatus    `json:"status" db:"status"`
	TotalAmount        int64            `json:"total_amount" db:"total_amount"`
	CommissionAmount   int64            `json:"commission_amount" db:"commission_amount"`
	RefundAmount       int64            `json:"refund_amount" db:"refund_amount"`
	CreatorRole        Role             `json:"creator_role" db:"creator_role"`
	CreatedBy          string           `json:"created_by" db:"created_by"`
	PaymentReference   *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
	ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string          `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// Key returns the (bus, travel date) pair the booking holds seats on.
func (b *Booking) Key() SeatKey {
	return SeatKey{BusID: b.BusID, TravelDate: b.TravelDate}
}

// HoldsSeats reports whether the booking currently owns its seats.
func (b *Booking) HoldsSeats() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// Clone returns a deep copy of the booking
func (b *Booking) Clone() *Booking {
	c := *b
	c.SeatNumbers = append(SeatNumbers(nil), b.SeatNumbers...)
	return &c
}

// CanTransitionTo reports whether the status machine allows moving to next:
// pending → confirmed, pending → cancelled, confirmed → cancelled.
func (b *Booking) CanTransitionTo(next BookingStatus) bool {
	switch b.Status {
	case BookingStatusPending:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	case BookingStatusConfirmed:
		return next == BookingStatusCancelled
	}
	return false
}

// Confirm marks a pending booking as paid
func (b *Booking) Confirm(paymentReference string, now time.Time) error {
	if !b.CanTransitionTo(BookingStatusConfirmed) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, b.Status, BookingStatusConfirmed)
	}
	b.Status = BookingStatusConfirmed
	b.PaymentReference = &paymentReference
	b.ConfirmedAt = &now
	b.ExpiresAt = nil
	b.UpdatedAt = now
	return nil
}

// Cancel cancels the booking with the given refund
func (b *Booking) Cancel(reason string, refund int64, now time.Time) error {
	if !b.CanTransitionTo(BookingStatusCancelled) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, b.Status, BookingStatusCancelled)
	}
	b.Status = BookingStatusCancelled
	b.CancelledAt = &now
	if reason != "" {
		b.CancellationReason = &reason
	}
	b.RefundAmount = refund
	b.ExpiresAt = nil
	b.UpdatedAt = now
	return nil
}

// IsExpired reports whether a pending booking has outlived its hold
func (b *Booking) IsExpired(now time.Time) bool {
	return b.Status == BookingStatusPending && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// GenerateBookingReference builds a human-readable reference such as
// BK-20261018-3FA9C2. The suffix is random; the database enforces uniqueness.
func GenerateBookingReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("BK-%s-%s", now.Format("20060102"), suffix)
}

// CreateBookingRequest represents the request to reserve seats
type CreateBookingRequest struct {
	BusID       string           `json:"bus_id" binding:"required"`
	TravelDate  string           `json:"travel_date" binding:"required"` // YYYY-MM-DD
	SeatNumbers []int            `json:"seat_numbers" binding:"required"`
	Passenger   PassengerDetails `json:"passenger" binding:"required"`
}

// CancelBookingRequest represents the request to cancel a booking
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// ConfirmPaymentRequest represents the payment collaborator's confirmation
type ConfirmPaymentRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// FailPaymentRequest represents the payment collaborator's failure callback
type FailPaymentRequest struct {
	Reason string `json:"reason"`
}

// BookingFilter narrows the admin booking listing
type BookingFilter struct {
	BusID       string
	TravelDate  string
	Status      BookingStatus
	CreatorRole Role
	CreatedBy   string
	Limit       int
	Offset      int
}
