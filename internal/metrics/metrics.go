// Package metrics holds the Prometheus collectors updated during transfers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the transfer collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transfers *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	parts     prometheus.Counter
	bytes     prometheus.Counter
	retries   *prometheus.CounterVec
	aborts    prometheus.Counter
	cleanups  prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awsmultic_transfers_total",
			Help: "Transfers by strategy and outcome",
		}, []string{"strategy", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "awsmultic_transfer_duration_seconds",
			Help:    "Duration of transfers by strategy",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~27min
		}, []string{"strategy"}),

		parts: factory.NewCounter(prometheus.CounterOpts{
			Name: "awsmultic_parts_uploaded_total",
			Help: "Parts accepted by the store",
		}),

		bytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "awsmultic_bytes_uploaded_total",
			Help: "Payload bytes of parts accepted by the store",
		}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "awsmultic_part_retries_total",
			Help: "Part upload retries by error kind",
		}, []string{"kind"}),

		aborts: factory.NewCounter(prometheus.CounterOpts{
			Name: "awsmultic_sessions_aborted_total",
			Help: "Multipart sessions aborted",
		}),

		cleanups: factory.NewCounter(prometheus.CounterOpts{
			Name: "awsmultic_source_cleanup_failures_total",
			Help: "Sources left behind after the object was relocated",
		}),
	}
}

// ObserveTransfer records a finished transfer.
func (m *Metrics) ObserveTransfer(strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(strategy, outcome).Inc()
	m.duration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObservePart records an uploaded part.
func (m *Metrics) ObservePart(size int64) {
	if m == nil {
		return
	}
	m.parts.Inc()
	m.bytes.Add(float64(size))
}

// ObserveRetry records a part retry caused by an error of kind.
func (m *Metrics) ObserveRetry(kind string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(kind).Inc()
}

// ObserveAbort records an aborted session.
func (m *Metrics) ObserveAbort() {
	if m == nil {
		return
	}
	m.aborts.Inc()
}

// ObserveCleanupFailure records a source that could not be deleted.
func (m *Metrics) ObserveCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanups.Inc()
}
