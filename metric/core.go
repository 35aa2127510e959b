// Package metric provides Prometheus metrics for the castmark registry:
// operation counters and latency, mark population gauges, the pause switch,
// and NATS connection state.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xSardius/castmark/errors"
)

// Metrics contains all castmark platform metrics
type Metrics struct {
	// Registry operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	MarksActive       prometheus.Gauge
	MarksRemoved      prometheus.Gauge
	Paused            prometheus.Gauge
	StoreErrors       prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "castmark",
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Total registry operations by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "castmark",
				Subsystem: "registry",
				Name:      "operation_duration_seconds",
				Help:      "Registry operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		MarksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "castmark",
				Subsystem: "registry",
				Name:      "marks_active",
				Help:      "Number of active marks",
			},
		),

		MarksRemoved: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "castmark",
				Subsystem: "registry",
				Name:      "marks_removed",
				Help:      "Number of soft-removed marks (keys reserved forever)",
			},
		),

		Paused: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "castmark",
				Subsystem: "registry",
				Name:      "paused",
				Help:      "Pause switch state (0=running, 1=paused)",
			},
		),

		StoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "castmark",
				Subsystem: "store",
				Name:      "errors_total",
				Help:      "Total write-through persistence failures",
			},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "castmark",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total domain events published by kind",
			},
			[]string{"kind"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "castmark",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "castmark",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnections",
			},
		),
	}
}

// RecordOperation records one registry operation's outcome and latency. The
// status label is "success" for nil errors and the error class otherwise.
func (m *Metrics) RecordOperation(operation string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = errors.Classify(err).String()
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetPaused records the pause switch state.
func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

// SetMarkCounts records the mark population gauges.
func (m *Metrics) SetMarkCounts(active, removed int) {
	m.MarksActive.Set(float64(active))
	m.MarksRemoved.Set(float64(removed))
}

// SetNATSConnected records the NATS connection gauge.
func (m *Metrics) SetNATSConnected(connected bool) {
	if connected {
		m.NATSConnected.Set(1)
	} else {
		m.NATSConnected.Set(0)
	}
}
