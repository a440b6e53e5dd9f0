// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons used as the "reason" label of BatchesFailed.
const (
	ReasonFatal     = "fatal"
	ReasonTransient = "transient"
	ReasonTimeout   = "dependency_timeout"
	ReasonSource    = "source"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Stream metrics
	EventsApplied *prometheus.CounterVec
	EventsUndone  *prometheus.CounterVec
	EventsSkipped *prometheus.CounterVec

	// Batch metrics
	BatchesCommitted *prometheus.CounterVec
	BatchesFailed    *prometheus.CounterVec
	BatchLatency     *prometheus.HistogramVec
	CommittedOffset  *prometheus.GaugeVec

	// Barrier metrics
	BarrierWaits       *prometheus.CounterVec
	BarrierWaitLatency *prometheus.HistogramVec
	BarrierTimeouts    *prometheus.CounterVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
	JournalErrors prometheus.Counter

	// Health metrics
	LastSuccessfulBatch *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
// A nil reg registers on the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "mangrove_indexer"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_applied_total",
			Help:      "Total number of events applied by stream and kind",
		}, []string{"stream", "kind"}),
		EventsUndone: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_undone_total",
			Help:      "Total number of undo events processed by stream and kind",
		}, []string{"stream", "kind"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_skipped_total",
			Help:      "Total number of events with an unknown kind",
		}, []string{"stream", "kind"}),

		// Batch metrics
		BatchesCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "batches_committed_total",
			Help:      "Total number of committed batches",
		}, []string{"stream"}),
		BatchesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "batches_failed_total",
			Help:      "Total number of failed batch attempts by reason",
		}, []string{"stream", "reason"}),
		BatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "batch_latency_seconds",
			Help:      "Time to apply and commit one batch in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stream"}),
		CommittedOffset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consumer",
			Name:      "committed_offset",
			Help:      "Last committed stream offset",
		}, []string{"stream"}),

		// Barrier metrics
		BarrierWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "waits_total",
			Help:      "Total number of barrier waits by chain",
		}, []string{"chain"}),
		BarrierWaitLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a causally prior transaction",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5, 10, 30, 60, 300},
		}, []string{"chain"}),
		BarrierTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "barrier",
			Name:      "timeouts_total",
			Help:      "Total number of barrier waits that timed out",
		}, []string{"chain"}),

		// Database metrics
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database errors",
		}, []string{"database", "operation"}),
		JournalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "journal_errors_total",
			Help:      "Total number of journal appends that failed",
		}),

		// Health metrics
		LastSuccessfulBatch: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of the last committed batch",
		}, []string{"stream"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordEvent counts one processed event.
func (m *Metrics) RecordEvent(stream, kind string, undo, skipped bool) {
	switch {
	case skipped:
		m.EventsSkipped.WithLabelValues(stream, kind).Inc()
	case undo:
		m.EventsUndone.WithLabelValues(stream, kind).Inc()
	default:
		m.EventsApplied.WithLabelValues(stream, kind).Inc()
	}
}

// RecordBatchCommitted records a committed batch and its new offset.
func (m *Metrics) RecordBatchCommitted(stream string, offset int64, latency time.Duration) {
	m.BatchesCommitted.WithLabelValues(stream).Inc()
	m.BatchLatency.WithLabelValues(stream).Observe(latency.Seconds())
	m.CommittedOffset.WithLabelValues(stream).Set(float64(offset))
	m.LastSuccessfulBatch.WithLabelValues(stream).Set(float64(time.Now().Unix()))
}

// RecordBatchFailed records a failed batch attempt.
func (m *Metrics) RecordBatchFailed(stream, reason string) {
	m.BatchesFailed.WithLabelValues(stream, reason).Inc()
}

// RecordBarrierWait records one completed barrier wait.
func (m *Metrics) RecordBarrierWait(chain string, waited time.Duration, timedOut bool) {
	m.BarrierWaits.WithLabelValues(chain).Inc()
	m.BarrierWaitLatency.WithLabelValues(chain).Observe(waited.Seconds())
	if timedOut {
		m.BarrierTimeouts.WithLabelValues(chain).Inc()
	}
}

// RecordDBError records a database error.
func (m *Metrics) RecordDBError(database, operation string) {
	m.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
