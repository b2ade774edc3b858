package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// SeatLocker runs critical sections on one seat map. Each attempt is bounded
// by the lock timeout; a Busy attempt is retried once after the backoff.
type SeatLocker struct {
	store   database.SeatStore
	timeout time.Duration
	backoff time.Duration
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewSeatLocker creates a new SeatLocker
func NewSeatLocker(store database.SeatStore, cfg EngineConfig, m *metrics.Metrics, logger *logrus.Logger) *SeatLocker {
	return &SeatLocker{
		store:   store,
		timeout: cfg.LockTimeout,
		backoff: cfg.LockRetryBackoff,
		metrics: m,
		logger:  logger,
	}
}

// Do runs fn under the seat map lock for key
func (l *SeatLocker) Do(ctx context.Context, key models.SeatKey, fn func(tx database.SeatTx) error) error {
	err := l.attempt(ctx, key, fn)
	if !errors.Is(err, models.ErrBusy) {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"bus_id":      key.BusID,
		"travel_date": key.TravelDate,
	}).Warn("Seat map busy, retrying once")

	timer := time.NewTimer(l.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return err
	}

	return l.attempt(ctx, key, fn)
}

// attempt records how long acquiring the lock took, not how long it was held.
// A failed acquisition records the time spent before giving up.
func (l *SeatLocker) attempt(ctx context.Context, key models.SeatKey, fn func(tx database.SeatTx) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	acquired := false
	err := l.store.WithSeatLock(lockCtx, key, func(tx database.SeatTx) error {
		acquired = true
		l.metrics.ObserveLockWait(time.Since(start))
		return fn(tx)
	})
	if !acquired {
		l.metrics.ObserveLockWait(time.Since(start))
	}
	return err
}
