// Package metrics defines recall's Prometheus instruments.
//
// Every method is safe on a nil *Metrics, so components accept an optional
// *Metrics without guarding each call.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recall"

// Event origins.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

// Sync round results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the instruments of one replica process.
type Metrics struct {
	eventsAccepted  *prometheus.CounterVec
	batchesRejected *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	syncRounds      *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	residentStreams prometheus.Gauge
}

// New creates the instruments and registers them on reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "events_accepted_total",
			Help:      "Events appended to a stream.",
		}, []string{"kind", "origin"}),
		batchesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "batches_rejected_total",
			Help:      "Batches dropped by index validation.",
		}, []string{"kind"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "decode_failures_total",
			Help:      "Batches whose payloads failed schema or decode.",
		}, []string{"kind"}),
		syncRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rounds_total",
			Help:      "Completed sync sessions by result.",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "round_duration_seconds",
			Help:      "Wall time of a sync session.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		residentStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      "resident_streams",
			Help:      "Streams currently held in memory.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.eventsAccepted,
			m.batchesRejected,
			m.decodeFailures,
			m.syncRounds,
			m.syncDuration,
			m.residentStreams,
		)
	}
	return m
}

// Accepted counts n events appended to a stream of kind.
func (m *Metrics) Accepted(kind, origin string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsAccepted.WithLabelValues(kind, origin).Add(float64(n))
}

// Rejected counts one batch dropped by validation.
func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.batchesRejected.WithLabelValues(kind).Inc()
}

// DecodeFailed counts one batch that failed to decode.
func (m *Metrics) DecodeFailed(kind string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(kind).Inc()
}

// SyncRound records a finished sync session.
func (m *Metrics) SyncRound(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncRounds.WithLabelValues(result).Inc()
	m.syncDuration.Observe(d.Seconds())
}

// SetResident sets the number of in-memory streams.
func (m *Metrics) SetResident(n int) {
	if m == nil {
		return
	}
	m.residentStreams.Set(float64(n))
}
