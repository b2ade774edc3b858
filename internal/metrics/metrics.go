package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reservation outcomes
const (
	OutcomeReserved     = "reserved"
	OutcomeConflict     = "seat_conflict"
	OutcomeWindowClosed = "window_closed"
	OutcomeBusy         = "busy"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// Cancellation reasons
const (
	CancelByUser       = "user"
	CancelPaymentFail  = "payment_failed"
	CancelPendingTimer = "expired"
)

// Metrics owns the engine's Prometheus collectors on a private registry.
// A nil *Metrics discards observations.
type Metrics struct {
	registry *prometheus.Registry

	reservations  *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	confirmations prometheus.Counter
	lockWait      prometheus.Histogram
	expired       prometheus.Counter
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seat_engine",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seat_engine",
			Name:      "cancellations_total",
			Help:      "Cancelled bookings by reason.",
		}, []string{"reason"}),
		confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seat_engine",
			Name:      "confirmations_total",
			Help:      "Bookings confirmed by payment.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seat_engine",
			Name:      "seat_lock_wait_seconds",
			Help:      "Time spent waiting to acquire the per bus and travel date seat lock.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "seat_engine",
			Name:      "expired_bookings_total",
			Help:      "Pending bookings released by the expiry sweep.",
		}),
	}

	m.registry.MustRegister(
		m.reservations,
		m.cancellations,
		m.confirmations,
		m.lockWait,
		m.expired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCancellation(reason string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveConfirmation() {
	if m == nil {
		return
	}
	m.confirmations.Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) ObserveExpired(n int) {
	if m == nil {
		return
	}
	m.expired.Add(float64(n))
}
