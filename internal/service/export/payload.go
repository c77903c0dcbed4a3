package export

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// Compress gzips data and encodes it as standard base64.
func Compress(data []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Envelope wraps already-compressed data for transmission.
func Envelope(encoded string, originalSize int) models.CompressedEnvelope {
	env := models.CompressedEnvelope{
		Compressed:     true,
		Data:           encoded,
		OriginalSize:   originalSize,
		CompressedSize: len(encoded),
	}
	if originalSize > 0 {
		env.CompressionRatio = (1 - float64(len(encoded))/float64(originalSize)) * 100
	}
	return env
}

// Split derives the core and detailed records of a two-phase export.
func Split(log *models.CallLog) (models.CorePayload, models.DetailedPayload) {
	duration := int64(log.DurationSeconds)
	billing := int64(log.BillingDurationSeconds)

	metadata := log.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	usage := metadata["usage"]
	if usage == nil {
		usage = map[string]any{}
	}
	formatted, _ := metadata["duration_formatted"].(string)

	environment := log.Environment
	if environment == "" {
		environment = DefaultEnvironment
	}
	transcript := log.TranscriptJSON
	if transcript == nil {
		transcript = []models.TranscriptEntry{}
	}

	core := models.CorePayload{
		CallID:                 log.CallID,
		AgentID:                log.AgentID,
		CustomerNumber:         log.CustomerNumber,
		CallEndedReason:        log.CallEndedReason,
		CallStartedAt:          log.CallStartedAt,
		CallEndedAt:            log.CallEndedAt,
		DurationSeconds:        &duration,
		BillingDurationSeconds: &billing,
		RecordingURL:           log.RecordingURL,
		VoiceRecordingURL:      log.VoiceRecordingURL,
		TranscriptType:         log.TranscriptType,
		Environment:            environment,
		TranscriptJSON:         transcript,
		SummaryMetrics:         Summarize(log.TranscriptWithMetrics),
		TelemetrySummary:       SummarizeTelemetry(log.TelemetryData),
		Metadata: models.CoreMetadata{
			Usage:             usage,
			DurationFormatted: formatted,
		},
		DynamicVariables: log.DynamicVariables,
	}

	turns := log.TranscriptWithMetrics
	if turns == nil {
		turns = []models.ConversationTurn{}
	}
	telemetry := log.TelemetryData
	if telemetry == nil {
		telemetry = &models.TelemetryData{}
	}
	detailed := models.DetailedPayload{
		CallID:                log.CallID,
		UpdateType:            models.UpdateTypeDetailedTelemetry,
		TranscriptWithMetrics: turns,
		TelemetryData:         telemetry,
		Metadata:              metadata,
	}
	return core, detailed
}

// Summarize aggregates per-turn metrics. Latency is the mean of
// EOU delay + LLM TTFT + TTS TTFB over turns where that sum is positive.
func Summarize(turns []models.ConversationTurn) models.SummaryMetrics {
	s := models.SummaryMetrics{TotalTurns: len(turns)}
	var latencySum float64
	var latencyN int

	for _, t := range turns {
		var latency float64
		if t.EOUMetrics != nil {
			latency += t.EOUMetrics.EndOfUtteranceDelay
		}
		if t.LLMMetrics != nil {
			latency += t.LLMMetrics.TTFT
			s.TotalLLMTokens += t.LLMMetrics.PromptTokens + t.LLMMetrics.CompletionTokens
		}
		if t.TTSMetrics != nil {
			latency += t.TTSMetrics.TTFB
			s.TotalTTSCharacters += t.TTSMetrics.CharactersCount
		}
		if t.STTMetrics != nil {
			s.TotalSTTDuration += t.STTMetrics.AudioDuration
		}
		if latency > 0 {
			latencySum += latency
			latencyN++
		}
	}

	if latencyN > 0 {
		avg := latencySum / float64(latencyN)
		s.AvgLatency = &avg
	}
	return s
}

// SummarizeTelemetry keeps the aggregates of td and drops its spans.
func SummarizeTelemetry(td *models.TelemetryData) models.TelemetrySummary {
	if td == nil {
		return models.TelemetrySummary{PerformanceMetrics: &models.PerformanceMetrics{}}
	}
	pm := td.PerformanceMetrics
	return models.TelemetrySummary{
		TotalSpans:         len(td.SessionTraces),
		PerformanceMetrics: &pm,
		OperationBreakdown: td.SpanSummary.ByOperation,
	}
}

// BuildTelemetry collects every span of the session tagged with its turn,
// plus session-wide and per-operation aggregates.
func BuildTelemetry(turns []models.ConversationTurn) *models.TelemetryData {
	td := &models.TelemetryData{
		SessionTraces: []models.TracedSpan{},
		SpanSummary:   models.SpanSummary{ByOperation: map[string]models.OperationSummary{}},
	}

	var traceSum int64
	var traced int
	for _, t := range turns {
		for _, sp := range t.OtelSpans {
			td.SessionTraces = append(td.SessionTraces, models.TracedSpan{Span: sp, TurnID: t.TurnID, TraceID: t.TraceID})

			op := td.SpanSummary.ByOperation[sp.Operation]
			op.Count++
			op.TotalDurationMs += sp.DurationMs
			if sp.Status == models.SpanStatusError {
				op.Errors++
			}
			td.SpanSummary.ByOperation[sp.Operation] = op
		}
		if t.TraceDurationMs != nil {
			traceSum += *t.TraceDurationMs
			traced++
		}
		if t.TraceCostUSD != nil {
			td.PerformanceMetrics.TotalCostUSD += *t.TraceCostUSD
		}
		if t.BugReport {
			td.PerformanceMetrics.BugReportTurns++
		}
		td.PerformanceMetrics.ToolCalls += len(t.ToolCalls)
	}

	for name, op := range td.SpanSummary.ByOperation {
		op.AvgDurationMs = float64(op.TotalDurationMs) / float64(op.Count)
		td.SpanSummary.ByOperation[name] = op
	}

	td.SpanSummary.TotalSpans = len(td.SessionTraces)
	td.PerformanceMetrics.TotalTurns = len(turns)
	td.PerformanceMetrics.TotalSpans = len(td.SessionTraces)
	td.PerformanceMetrics.TotalCostUSD = trace.RoundUSD(td.PerformanceMetrics.TotalCostUSD)
	if traced > 0 {
		td.PerformanceMetrics.AvgTraceDurationMs = float64(traceSum) / float64(traced)
	}
	return td
}
