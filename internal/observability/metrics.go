package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	// Relay subscription metrics
	RelayConnectionsTotal *prometheus.CounterVec
	RelaysConnected       prometheus.Gauge
	EventsReceivedTotal   *prometheus.CounterVec
	EventsDuplicateTotal  prometheus.Counter

	// Unwrap pipeline metrics
	UnwrapAttemptsTotal *prometheus.CounterVec
	UnwrapDuration      prometheus.Histogram

	// Chunk fetch metrics
	ChunkFetchesTotal    *prometheus.CounterVec
	ChunkFetchDuration   prometheus.Histogram
	ChunksFetchedTotal   prometheus.Counter
	ChunksMissingTotal   prometheus.Counter

	// Symbolication metrics
	SymbolicationsTotal    *prometheus.CounterVec
	SymbolicationDuration  prometheus.Histogram
	FramesResolvedTotal    prometheus.Counter
	FramesUnresolvedTotal  prometheus.Counter

	// Storage metrics
	CrashesStoredTotal      *prometheus.CounterVec
	DatabaseOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RelayConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_relay_connections_total",
				Help: "Relay WebSocket connection attempts",
			},
			[]string{"result"},
		),

		RelaysConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bugstr_relays_connected",
				Help: "Currently connected relays",
			},
		),

		EventsReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_events_received_total",
				Help: "Events received on relay subscriptions, by kind",
			},
			[]string{"kind"},
		),

		EventsDuplicateTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bugstr_events_duplicate_total",
				Help: "Events discarded by subscription-level dedup",
			},
		),

		UnwrapAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_unwrap_attempts_total",
				Help: "Gift wrap unwrap attempts",
			},
			[]string{"result"},
		),

		UnwrapDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bugstr_unwrap_duration_seconds",
				Help:    "Gift wrap to rumor unwrap latency",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),

		ChunkFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_chunk_fetches_total",
				Help: "Manifest chunk fetch fan-outs, by outcome",
			},
			[]string{"result"},
		),

		ChunkFetchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bugstr_chunk_fetch_duration_seconds",
				Help:    "Per-manifest chunk fetch latency",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 30},
			},
		),

		ChunksFetchedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bugstr_chunks_fetched_total",
				Help: "Individual chunks successfully fetched",
			},
		),

		ChunksMissingTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bugstr_chunks_missing_total",
				Help: "Chunks that could not be fetched from any hinted or fallback relay",
			},
		),

		SymbolicationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_symbolications_total",
				Help: "Symbolication passes, by platform and result",
			},
			[]string{"platform", "result"},
		),

		SymbolicationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bugstr_symbolication_duration_seconds",
				Help:    "Stack trace symbolication latency",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),

		FramesResolvedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bugstr_frames_resolved_total",
				Help: "Stack frames successfully mapped to original source",
			},
		),

		FramesUnresolvedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bugstr_frames_unresolved_total",
				Help: "Stack frames left unresolved (no mapping available)",
			},
		),

		CrashesStoredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_crashes_stored_total",
				Help: "Crash reports persisted, by platform",
			},
			[]string{"platform"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bugstr_database_operations_total",
				Help: "Store operation count, by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

// RecordRelayConnection records a relay connection attempt outcome.
func (m *Metrics) RecordRelayConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.RelayConnectionsTotal.WithLabelValues(result).Inc()
}

// RecordEventReceived increments the per-kind event counter.
func (m *Metrics) RecordEventReceived(kind string) {
	m.EventsReceivedTotal.WithLabelValues(kind).Inc()
}

// RecordUnwrap records an unwrap attempt outcome and its latency.
func (m *Metrics) RecordUnwrap(success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.UnwrapAttemptsTotal.WithLabelValues(result).Inc()
	m.UnwrapDuration.Observe(durationSeconds)
}

// RecordChunkFetch records a manifest fetch outcome and its latency.
func (m *Metrics) RecordChunkFetch(success bool, durationSeconds float64, fetched, missing int) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ChunkFetchesTotal.WithLabelValues(result).Inc()
	m.ChunkFetchDuration.Observe(durationSeconds)
	m.ChunksFetchedTotal.Add(float64(fetched))
	m.ChunksMissingTotal.Add(float64(missing))
}

// RecordSymbolication records a symbolication pass outcome and frame counts.
func (m *Metrics) RecordSymbolication(platform string, success bool, durationSeconds float64, resolved, unresolved int) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.SymbolicationsTotal.WithLabelValues(platform, result).Inc()
	m.SymbolicationDuration.Observe(durationSeconds)
	m.FramesResolvedTotal.Add(float64(resolved))
	m.FramesUnresolvedTotal.Add(float64(unresolved))
}

// RecordCrashStored increments the stored-crash counter for a platform.
func (m *Metrics) RecordCrashStored(platform string) {
	m.CrashesStoredTotal.WithLabelValues(platform).Inc()
}

// RecordDatabaseOperation records a store operation outcome.
func (m *Metrics) RecordDatabaseOperation(operation string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.DatabaseOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
