package models

// UpdateTypeDetailedTelemetry marks the second request of a two-phase export.
const UpdateTypeDetailedTelemetry = "detailed_telemetry"

// TranscriptEntry is one line of the plain transcript.
type TranscriptEntry struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// TracedSpan is a span tagged with the turn it belongs to.
type TracedSpan struct {
	Span
	TurnID  string `json:"turn_id"`
	TraceID string `json:"trace_id,omitempty"`
}

// OperationSummary aggregates spans of one operation.
type OperationSummary struct {
	Count           int     `json:"count"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	Errors          int     `json:"errors"`
}

// SpanSummary groups session spans by operation.
type SpanSummary struct {
	TotalSpans  int                         `json:"total_spans"`
	ByOperation map[string]OperationSummary `json:"by_operation"`
}

// PerformanceMetrics are session-wide trace aggregates.
type PerformanceMetrics struct {
	TotalTurns         int     `json:"total_turns"`
	TotalSpans         int     `json:"total_spans"`
	AvgTraceDurationMs float64 `json:"avg_trace_duration_ms"`
	TotalCostUSD       float64 `json:"total_cost_usd"`
	BugReportTurns     int     `json:"bug_report_turns"`
	ToolCalls          int     `json:"tool_calls"`
}

// TelemetryData is the full span-level record of a session.
type TelemetryData struct {
	SessionTraces      []TracedSpan       `json:"session_traces"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	SpanSummary        SpanSummary        `json:"span_summary"`
}

// SummaryMetrics aggregates per-turn metrics across the call.
type SummaryMetrics struct {
	TotalTurns         int      `json:"total_turns"`
	AvgLatency         *float64 `json:"avg_latency"`
	TotalLLMTokens     int      `json:"total_llm_tokens"`
	TotalTTSCharacters int      `json:"total_tts_characters"`
	TotalSTTDuration   float64  `json:"total_stt_duration"`
}

// TelemetrySummary is the span-free digest of TelemetryData.
type TelemetrySummary struct {
	TotalSpans         int                         `json:"total_spans"`
	PerformanceMetrics *PerformanceMetrics         `json:"performance_metrics,omitempty"`
	OperationBreakdown map[string]OperationSummary `json:"operation_breakdown,omitempty"`
}

// CallLog is the complete record of one call as sent to the analytics endpoint.
type CallLog struct {
	CallID                 string  `json:"call_id"`
	AgentID                string  `json:"agent_id"`
	CustomerNumber         string  `json:"customer_number,omitempty"`
	CallEndedReason        string  `json:"call_ended_reason"`
	CallStartedAt          string  `json:"call_started_at,omitempty"`
	CallEndedAt            string  `json:"call_ended_at,omitempty"`
	DurationSeconds        float64 `json:"duration_seconds"`
	BillingDurationSeconds float64 `json:"billing_duration_seconds"`
	RecordingURL           string  `json:"recording_url"`
	VoiceRecordingURL      string  `json:"voice_recording_url"`
	TranscriptType         string  `json:"transcript_type"`
	Environment            string  `json:"environment"`

	TranscriptJSON        []TranscriptEntry  `json:"transcript_json"`
	TranscriptWithMetrics []ConversationTurn `json:"transcript_with_metrics"`
	FormattedTranscript   string             `json:"formatted_transcript,omitempty"`
	TelemetryData         *TelemetryData     `json:"telemetry_data,omitempty"`
	Metadata              map[string]any     `json:"metadata"`
	DynamicVariables      map[string]any     `json:"dynamic_variables,omitempty"`
}

// CoreMetadata is the trimmed metadata kept in the core record.
type CoreMetadata struct {
	Usage             any    `json:"usage"`
	DurationFormatted string `json:"duration_formatted"`
}

// CorePayload is the first, synchronous request of a two-phase export.
type CorePayload struct {
	CallID                 string            `json:"call_id"`
	AgentID                string            `json:"agent_id"`
	CustomerNumber         string            `json:"customer_number,omitempty"`
	CallEndedReason        string            `json:"call_ended_reason"`
	CallStartedAt          string            `json:"call_started_at,omitempty"`
	CallEndedAt            string            `json:"call_ended_at,omitempty"`
	DurationSeconds        *int64            `json:"duration_seconds"`
	BillingDurationSeconds *int64            `json:"billing_duration_seconds"`
	RecordingURL           string            `json:"recording_url"`
	VoiceRecordingURL      string            `json:"voice_recording_url"`
	TranscriptType         string            `json:"transcript_type"`
	Environment            string            `json:"environment"`
	TranscriptJSON         []TranscriptEntry `json:"transcript_json"`
	SummaryMetrics         SummaryMetrics    `json:"summary_metrics"`
	TelemetrySummary       TelemetrySummary  `json:"telemetry_summary"`
	Metadata               CoreMetadata      `json:"metadata"`
	DynamicVariables       map[string]any    `json:"dynamic_variables,omitempty"`
}

// DetailedPayload is the background second request of a two-phase export.
type DetailedPayload struct {
	CallID                string             `json:"call_id"`
	UpdateType            string             `json:"update_type"`
	TranscriptWithMetrics []ConversationTurn `json:"transcript_with_metrics"`
	TelemetryData         *TelemetryData     `json:"telemetry_data"`
	Metadata              map[string]any     `json:"metadata"`
}

// CompressedEnvelope wraps a gzip+base64 encoded payload.
type CompressedEnvelope struct {
	Compressed       bool    `json:"compressed"`
	Data             string  `json:"data"`
	OriginalSize     int     `json:"original_size"`
	CompressedSize   int     `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
}

// CallSummary is the compact record of an exported call published to Kafka.
type CallSummary struct {
	SessionID       string           `json:"session_id"`
	CallID          string           `json:"call_id"`
	AgentID         string           `json:"agent_id"`
	CallEndedReason string           `json:"call_ended_reason"`
	DurationSeconds float64          `json:"duration_seconds"`
	Summary         SummaryMetrics   `json:"summary_metrics"`
	Telemetry       TelemetrySummary `json:"telemetry_summary"`
	BugReports      int              `json:"bug_reports"`
	ExportSucceeded bool             `json:"export_succeeded"`
	ExportMethod    string           `json:"export_method,omitempty"`
	ExportError     string           `json:"export_error,omitempty"`
	ExportedAt      string           `json:"exported_at"`
}
