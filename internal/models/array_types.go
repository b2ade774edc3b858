package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/lib/pq"
)

// SeatNumbers is a custom type for handling INTEGER[] seat arrays in PostgreSQL
type SeatNumbers []int

// Value implements the driver.Valuer interface
func (a SeatNumbers) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	ints := make(pq.Int64Array, len(a))
	for i, v := range a {
		ints[i] = int64(v)
	}
	return ints.Value()
}

// Scan implements the sql.Scanner interface.
// pq.GenericArray cannot scan into []int, so go through Int64Array.
func (a *SeatNumbers) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	var ints pq.Int64Array
	if err := ints.Scan(src); err != nil {
		return fmt.Errorf("failed to scan seat numbers: %w", err)
	}
	out := make(SeatNumbers, len(ints))
	for i, v := range ints {
		out[i] = int(v)
	}
	*a = out
	return nil
}
