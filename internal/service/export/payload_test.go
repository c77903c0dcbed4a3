package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

func TestSummarize(t *testing.T) {
	turns := []models.ConversationTurn{
		{
			EOUMetrics: &models.EOUMetrics{EndOfUtteranceDelay: 0.5},
			LLMMetrics: &models.LLMMetrics{PromptTokens: 100, CompletionTokens: 20, TTFT: 0.25},
			TTSMetrics: &models.TTSMetrics{CharactersCount: 40, TTFB: 0.25},
			STTMetrics: &models.STTMetrics{AudioDuration: 2.5},
		},
		{
			LLMMetrics: &models.LLMMetrics{PromptTokens: 10, CompletionTokens: 5, TTFT: 0.5},
		},
		{UserTranscript: "no metrics"},
	}

	s := Summarize(turns)
	assert.Equal(t, 3, s.TotalTurns)
	assert.Equal(t, 135, s.TotalLLMTokens)
	assert.Equal(t, 40, s.TotalTTSCharacters)
	assert.Equal(t, 2.5, s.TotalSTTDuration)
	require.NotNil(t, s.AvgLatency)
	assert.InDelta(t, 0.75, *s.AvgLatency, 1e-9)
}

func TestSummarize_NoLatency(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalTurns)
	assert.Nil(t, s.AvgLatency)
}

func TestBuildTelemetry(t *testing.T) {
	d1, d2 := int64(1000), int64(500)
	c1, c2 := 0.001, 0.0005
	turns := []models.ConversationTurn{
		{
			TurnID:  "turn_1",
			TraceID: "trace_1",
			OtelSpans: []models.Span{
				{Operation: "stt", DurationMs: 200, Status: models.SpanStatusSuccess},
				{Operation: "llm", DurationMs: 800, Status: models.SpanStatusSuccess},
			},
			TraceDurationMs: &d1,
			TraceCostUSD:    &c1,
			BugReport:       true,
		},
		{
			TurnID:  "turn_2",
			TraceID: "trace_2",
			OtelSpans: []models.Span{
				{Operation: "llm", DurationMs: 400, Status: models.SpanStatusError},
			},
			ToolCalls:       []models.ToolCall{{Name: "lookup"}},
			TraceDurationMs: &d2,
			TraceCostUSD:    &c2,
		},
	}

	td := BuildTelemetry(turns)
	require.Len(t, td.SessionTraces, 3)
	assert.Equal(t, "turn_2", td.SessionTraces[2].TurnID)
	assert.Equal(t, "trace_2", td.SessionTraces[2].TraceID)

	llm := td.SpanSummary.ByOperation["llm"]
	assert.Equal(t, 2, llm.Count)
	assert.Equal(t, int64(1200), llm.TotalDurationMs)
	assert.Equal(t, 600.0, llm.AvgDurationMs)
	assert.Equal(t, 1, llm.Errors)

	pm := td.PerformanceMetrics
	assert.Equal(t, 2, pm.TotalTurns)
	assert.Equal(t, 3, pm.TotalSpans)
	assert.Equal(t, 750.0, pm.AvgTraceDurationMs)
	assert.Equal(t, 0.0015, pm.TotalCostUSD)
	assert.Equal(t, 1, pm.BugReportTurns)
	assert.Equal(t, 1, pm.ToolCalls)

	summary := SummarizeTelemetry(td)
	assert.Equal(t, 3, summary.TotalSpans)
	assert.Equal(t, td.SpanSummary.ByOperation, summary.OperationBreakdown)
}

func TestSplit_DefaultsAndTruncation(t *testing.T) {
	log := &models.CallLog{CallID: "c", DurationSeconds: 9.99, BillingDurationSeconds: 10.2}

	core, detailed := Split(log)
	assert.Equal(t, int64(9), *core.DurationSeconds)
	assert.Equal(t, int64(10), *core.BillingDurationSeconds)
	assert.Equal(t, "dev", core.Environment)
	assert.Equal(t, map[string]any{}, core.Metadata.Usage)
	assert.NotNil(t, core.TranscriptJSON)
	assert.Equal(t, models.UpdateTypeDetailedTelemetry, detailed.UpdateType)
	assert.NotNil(t, detailed.TelemetryData)
	assert.NotNil(t, detailed.TranscriptWithMetrics)
}

func TestTimestamp(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       any
		expected string
	}{
		{"nil", nil, ""},
		{"string passthrough", "2026-03-01T12:30:00Z", "2026-03-01T12:30:00Z"},
		{"time", at, "2026-03-01T12:30:00Z"},
		{"unix float", float64(at.Unix()) + 0.5, "2026-03-01T12:30:00.5Z"},
		{"unix int", int(at.Unix()), "2026-03-01T12:30:00Z"},
		{"zero", 0.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Timestamp(tt.in))
		})
	}
}

func TestNormalize(t *testing.T) {
	log := &models.CallLog{CallEndedReason: "error", Environment: "prod"}
	Normalize(log)
	assert.Equal(t, "error", log.CallEndedReason)
	assert.Equal(t, "prod", log.Environment)

	log = &models.CallLog{}
	Normalize(log)
	assert.Equal(t, "completed", log.CallEndedReason)
	assert.Equal(t, "dev", log.Environment)
	assert.NotNil(t, log.Metadata)
}
