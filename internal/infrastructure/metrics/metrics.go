package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sender service
type Metrics struct {
	// Dispatch metrics
	MessagesSent     prometheus.Counter
	MessagesFailed   *prometheus.CounterVec
	MessagesSkipped  prometheus.Counter
	DispatchDuration prometheus.Histogram
	JobsFinished     *prometheus.CounterVec

	// Account metrics
	FloodWaits        prometheus.Counter
	ConnectFailures   *prometheus.CounterVec
	ActiveConnections prometheus.Gauge

	// Extraction metrics
	MembersExtracted prometheus.Counter

	// Kafka metrics
	JobEventsProduced prometheus.Counter
	JobEventsDropped  prometheus.Counter
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	// Initialize DefaultMetrics on package import
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance with all counters and gauges
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_messages_sent_total",
			Help: "Total number of messages accepted by the provider",
		}),
		MessagesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_service_messages_failed_total",
				Help: "Total number of failed send attempts",
			},
			[]string{"reason"},
		),
		MessagesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_messages_skipped_total",
			Help: "Total number of recipients left unattempted after quota exhaustion",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sender_service_dispatch_duration_seconds",
			Help:    "Duration of dispatch jobs in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		JobsFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_service_jobs_finished_total",
				Help: "Total number of finished jobs",
			},
			[]string{"kind", "status"},
		),
		FloodWaits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_flood_waits_total",
			Help: "Total number of provider flood wait penalties received",
		}),
		ConnectFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sender_service_connect_failures_total",
				Help: "Total number of failed account connection attempts",
			},
			[]string{"kind"},
		),
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sender_service_active_connections",
			Help: "Current number of live protocol sessions",
		}),
		MembersExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_members_extracted_total",
			Help: "Total number of members extracted from source chats",
		}),
		JobEventsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_job_events_produced_total",
			Help: "Total number of job events published to Kafka",
		}),
		JobEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sender_service_job_events_dropped_total",
			Help: "Total number of job events that failed to publish",
		}),
	}
}

// RecordSend records one successful send
func (m *Metrics) RecordSend() {
	m.MessagesSent.Inc()
}

// RecordFailure records one failed send attempt with its reason
func (m *Metrics) RecordFailure(reason string) {
	m.MessagesFailed.WithLabelValues(reason).Inc()
}

// RecordJob records a finished job by kind and terminal status
func (m *Metrics) RecordJob(kind, status string) {
	m.JobsFinished.WithLabelValues(kind, status).Inc()
}
