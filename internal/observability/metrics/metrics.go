// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "whispey"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsExported *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec
	EventErrors      *prometheus.CounterVec

	// Turn metrics
	TurnsCompleted   prometheus.Counter
	TurnsFinalized   prometheus.Counter
	MetricsAttached  *prometheus.CounterVec
	MetricsBuffered  *prometheus.CounterVec
	PendingOverwrite *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec

	// Trace metrics
	TurnCost         prometheus.Histogram
	TraceDuration    prometheus.Histogram
	PricingFallbacks *prometheus.CounterVec
	EnrichmentErrors *prometheus.CounterVec

	// Bug report metrics
	BugReportsStarted    prometheus.Counter
	BugReportsCompleted  prometheus.Counter
	UtterancesSuppressed *prometheus.CounterVec
	ReplayFallbacks      prometheus.Counter

	// Export metrics
	ExportTotal       *prometheus.CounterVec
	ExportPayloadSize *prometheus.HistogramVec
	ExportLatency     *prometheus.HistogramVec
	PhaseTwoFailures  prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Evaluation metrics
	EvaluationsTotal *prometheus.CounterVec

	// Ingest stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of voice sessions registered",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently held in the store",
		}),
		SessionsExported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_exported_total",
			Help:      "Total number of sessions exported",
		}, []string{"result"}),
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of inbound pipeline events processed",
		}, []string{"type"}),
		EventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Total number of inbound events rejected",
		}, []string{"reason"}),

		// Turn metrics
		TurnsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Total number of turns closed by an assistant response",
		}),
		TurnsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_finalized_total",
			Help:      "Total number of turns annotated at session end",
		}),
		MetricsAttached: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_attached_total",
			Help:      "Metric snapshots attached to a turn, by kind and target",
		}, []string{"kind", "target"}),
		MetricsBuffered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_buffered_total",
			Help:      "Metric snapshots held in the pending buffer",
		}, []string{"kind"}),
		PendingOverwrite: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_metrics_overwritten_total",
			Help:      "Unconsumed pending metric snapshots replaced by a newer one",
		}, []string{"kind"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Function tool executions recorded on turns",
		}, []string{"status"}),

		// Trace metrics
		TurnCost: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_cost_usd",
			Help:      "Computed cost per turn in USD",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1},
		}),
		TraceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_trace_duration_seconds",
			Help:      "Wall-clock span coverage per turn in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		PricingFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_fallbacks_total",
			Help:      "Turns priced with the fixed-rate formula",
		}, []string{"reason"}),
		EnrichmentErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_errors_total",
			Help:      "Best-effort enrichment steps that failed and were skipped",
		}, []string{"step"}),

		// Bug report metrics
		BugReportsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bug_reports_started_total",
			Help:      "Bug reports opened by a start phrase",
		}),
		BugReportsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bug_reports_completed_total",
			Help:      "Bug reports closed by an end phrase",
		}),
		UtterancesSuppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_suppressed_total",
			Help:      "Utterances withheld from the turn pipeline",
		}, []string{"reason"}),
		ReplayFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bug_report_replay_fallbacks_total",
			Help:      "Replays that found no captured message and spoke the fallback phrase",
		}),

		// Export metrics
		ExportTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_total",
			Help:      "Export attempts by upload method and result",
		}, []string{"method", "result"}),
		ExportPayloadSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_payload_bytes",
			Help:      "Serialized call-log size in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"stage"}),
		ExportLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_latency_seconds",
			Help:      "Export request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"phase"}),
		PhaseTwoFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_phase_two_failures_total",
			Help:      "Background detailed-telemetry sends that failed",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// Evaluation metrics
		EvaluationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluation runs by outcome",
		}, []string{"type", "outcome"}),

		// Ingest stream metrics
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of gRPC event streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open gRPC event streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of gRPC event streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		}),
	}
}

// RecordSessionStart records a new session entering the store.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionRemoved records a session leaving the store.
func (m *Metrics) RecordSessionRemoved() {
	m.SessionsActive.Dec()
}

// RecordSessionExported records the outcome of a session export.
func (m *Metrics) RecordSessionExported(success bool) {
	m.SessionsExported.WithLabelValues(resultLabel(success)).Inc()
}

// RecordEvent records an inbound event being processed.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsProcessed.WithLabelValues(eventType).Inc()
}

// RecordEventError records an inbound event being rejected.
func (m *Metrics) RecordEventError(reason string) {
	m.EventErrors.WithLabelValues(reason).Inc()
}

// RecordTurnCompleted records a turn closed by an assistant response.
func (m *Metrics) RecordTurnCompleted() {
	m.TurnsCompleted.Inc()
}

// RecordMetricAttached records a metric snapshot landing on a turn.
// target is "current", "last", "drain" or "flush".
func (m *Metrics) RecordMetricAttached(kind, target string) {
	m.MetricsAttached.WithLabelValues(kind, target).Inc()
}

// RecordMetricBuffered records a snapshot going to the pending buffer.
func (m *Metrics) RecordMetricBuffered(kind string, overwrote bool) {
	m.MetricsBuffered.WithLabelValues(kind).Inc()
	if overwrote {
		m.PendingOverwrite.WithLabelValues(kind).Inc()
	}
}

// RecordToolCall records an executed function tool.
func (m *Metrics) RecordToolCall(status string) {
	m.ToolCalls.WithLabelValues(status).Inc()
}

// RecordTurnAnnotated records cost and trace duration of a finalized turn.
func (m *Metrics) RecordTurnAnnotated(costUSD float64, durationMs int64) {
	m.TurnsFinalized.Inc()
	m.TurnCost.Observe(costUSD)
	m.TraceDuration.Observe(float64(durationMs) / 1000)
}

// RecordPricingFallback records a turn priced with fixed rates.
func (m *Metrics) RecordPricingFallback(reason string) {
	m.PricingFallbacks.WithLabelValues(reason).Inc()
}

// RecordEnrichmentError records a skipped enrichment step.
func (m *Metrics) RecordEnrichmentError(step string) {
	m.EnrichmentErrors.WithLabelValues(step).Inc()
}

// RecordBugReportStarted records a bug report being opened.
func (m *Metrics) RecordBugReportStarted() {
	m.BugReportsStarted.Inc()
}

// RecordBugReportCompleted records a bug report being closed.
func (m *Metrics) RecordBugReportCompleted() {
	m.BugReportsCompleted.Inc()
}

// RecordSuppressed records an utterance withheld from the turn pipeline.
func (m *Metrics) RecordSuppressed(reason string) {
	m.UtterancesSuppressed.WithLabelValues(reason).Inc()
}

// RecordReplayFallback records a replay that fell back to the configured phrase.
func (m *Metrics) RecordReplayFallback() {
	m.ReplayFallbacks.Inc()
}

// RecordExport records an export attempt.
func (m *Metrics) RecordExport(method string, success bool) {
	m.ExportTotal.WithLabelValues(method, resultLabel(success)).Inc()
}

// RecordPayloadSize records a payload size at a given stage (original, compressed).
func (m *Metrics) RecordPayloadSize(stage string, bytes int) {
	m.ExportPayloadSize.WithLabelValues(stage).Observe(float64(bytes))
}

// RecordExportLatency records the duration of one export request.
func (m *Metrics) RecordExportLatency(phase string, seconds float64) {
	m.ExportLatency.WithLabelValues(phase).Observe(seconds)
}

// RecordPhaseTwoFailure records a failed background detailed send.
func (m *Metrics) RecordPhaseTwoFailure() {
	m.PhaseTwoFailures.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordEvaluation records an evaluation outcome (ok, error, timeout).
func (m *Metrics) RecordEvaluation(evalType, outcome string) {
	m.EvaluationsTotal.WithLabelValues(evalType, outcome).Inc()
}

// RecordStreamStart records a new ingest stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records an ingest stream ending.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
