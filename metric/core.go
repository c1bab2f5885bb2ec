package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the engine-level metrics
type Metrics struct {
	// Delivery metrics
	DeliveriesReceived *prometheus.CounterVec
	HandlerDuration    *prometheus.HistogramVec

	// Retry outcome metrics
	RetriesScheduled *prometheus.CounterVec
	Deferrals        *prometheus.CounterVec
	MessagesExpired  *prometheus.CounterVec
	RetriesExhausted *prometheus.CounterVec
	PublishErrors    *prometheus.CounterVec

	// Session ordering metrics
	SessionsTracked prometheus.Gauge

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DeliveriesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "deliveries",
				Name:      "received_total",
				Help:      "Total number of deliveries handed to the orchestrator",
			},
			[]string{"destination"},
		),

		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "requeue",
				Subsystem: "handler",
				Name:      "duration_seconds",
				Help:      "User handler execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"destination", "status"},
		),

		RetriesScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "retries",
				Name:      "scheduled_total",
				Help:      "Total number of failure-driven retries republished with a delay",
			},
			[]string{"destination"},
		),

		Deferrals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "retries",
				Name:      "deferrals_total",
				Help:      "Total number of pure ordering deferrals (republished without retrying)",
			},
			[]string{"destination"},
		),

		MessagesExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "retries",
				Name:      "expired_total",
				Help:      "Total number of messages whose deadline passed before a retry could be scheduled",
			},
			[]string{"destination"},
		),

		RetriesExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "retries",
				Name:      "exhausted_total",
				Help:      "Total number of messages that ran out of retries",
			},
			[]string{"destination"},
		),

		PublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "publish",
				Name:      "errors_total",
				Help:      "Total number of failed republish attempts",
			},
			[]string{"destination"},
		),

		SessionsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "requeue",
				Subsystem: "sessions",
				Name:      "tracked",
				Help:      "Number of sessions with pending ordered retries",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "requeue",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "requeue",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// ObserveHandler records one handler execution
func (m *Metrics) ObserveHandler(destination, status string, d time.Duration) {
	m.HandlerDuration.WithLabelValues(destination, status).Observe(d.Seconds())
}

// collectors returns every metric for bulk registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DeliveriesReceived,
		m.HandlerDuration,
		m.RetriesScheduled,
		m.Deferrals,
		m.MessagesExpired,
		m.RetriesExhausted,
		m.PublishErrors,
		m.SessionsTracked,
		m.NATSConnected,
		m.NATSReconnects,
	}
}
