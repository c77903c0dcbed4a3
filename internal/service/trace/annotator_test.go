package trace

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

type fakeSource struct {
	models map[models.MetricKind]string
	voice  string
}

func (f fakeSource) DetectedModel(kind models.MetricKind) string { return f.models[kind] }
func (f fakeSource) DetectedVoice() string                      { return f.voice }

func llmTurn(prompt, completion int) *models.ConversationTurn {
	m := &models.LLMMetrics{PromptTokens: prompt, CompletionTokens: completion, Timestamp: 100, Duration: 0.5}
	return &models.ConversationTurn{
		TurnID:     "turn_1",
		LLMMetrics: m,
		OtelSpans:  []models.Span{{SpanID: "span_llm_1", Operation: "llm", StartTime: 100, DurationMs: 500, Status: models.SpanStatusSuccess, Metadata: m.SpanMetadata()}},
	}
}

func TestAnnotate_FallbackWithoutPricer(t *testing.T) {
	turn := llmTurn(1000, 500)

	NewAnnotator(nil, zerolog.Nop()).Annotate(turn, nil)

	require.NotNil(t, turn.TraceCostUSD)
	assert.Equal(t, 0.0025, *turn.TraceCostUSD)
	require.NotNil(t, turn.TraceDurationMs)
	assert.Equal(t, int64(500), *turn.TraceDurationMs)
}

func TestAnnotate_NoSpansLeavesTurnUntouched(t *testing.T) {
	turn := &models.ConversationTurn{TurnID: "turn_1", UserTranscript: "hi"}

	NewAnnotator(nil, zerolog.Nop()).Annotate(turn, nil)

	assert.Nil(t, turn.TraceCostUSD)
	assert.Nil(t, turn.TraceDurationMs)
}

func TestAnnotate_PricerErrorFallsBack(t *testing.T) {
	turn := llmTurn(1000, 500)
	pricer := PricerFunc(func(models.Span) (float64, string, error) {
		return 0, "", errors.New("pricing backend down")
	})

	NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, nil)

	require.NotNil(t, turn.TraceCostUSD)
	assert.Equal(t, 0.0025, *turn.TraceCostUSD)
}

func TestAnnotate_PricerPanicFallsBack(t *testing.T) {
	turn := llmTurn(2000, 0)
	pricer := PricerFunc(func(models.Span) (float64, string, error) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, nil)
	})
	require.NotNil(t, turn.TraceCostUSD)
	assert.Equal(t, 0.002, *turn.TraceCostUSD)
}

func TestAnnotate_FailingSpanFallsBackAlone(t *testing.T) {
	turn := llmTurn(1000, 500)
	turn.OtelSpans = append(turn.OtelSpans, models.Span{SpanID: "span_tts_1", Operation: "tts", StartTime: 100.5, DurationMs: 250, Metadata: map[string]any{"characters_count": 100}})
	pricer := PricerFunc(func(s models.Span) (float64, string, error) {
		if s.Operation == "tts" {
			return 0, "", errors.New("no voice rate")
		}
		return 0.01, "flat", nil
	})

	NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, nil)

	require.NotNil(t, turn.TraceCostUSD)
	// 0.01 priced llm + 100 chars * 20/1M fixed-rate tts
	assert.Equal(t, 0.012, *turn.TraceCostUSD)
}

func TestAnnotate_DynamicPricingSumsAndRounds(t *testing.T) {
	turn := llmTurn(10, 10)
	turn.OtelSpans = append(turn.OtelSpans, models.Span{SpanID: "span_tts_1", Operation: "tts", StartTime: 100.5, DurationMs: 250, Metadata: map[string]any{"characters_count": 12}})
	pricer := PricerFunc(func(s models.Span) (float64, string, error) {
		return 0.0000012345, "flat", nil
	})

	NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, nil)

	require.NotNil(t, turn.TraceCostUSD)
	assert.Equal(t, 0.000002, *turn.TraceCostUSD)
	assert.Equal(t, int64(750), *turn.TraceDurationMs)
}

func TestAnnotate_ModelResolutionPriority(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		enhanced *models.EnhancedData
		source   ModelSource
		expected string
	}{
		{
			name:     "span metadata wins",
			metadata: map[string]any{"model_name": "gpt-4o"},
			enhanced: &models.EnhancedData{ModelName: "gpt-4o-mini"},
			source:   fakeSource{models: map[models.MetricKind]string{models.KindLLM: "claude-3"}},
			expected: "gpt-4o",
		},
		{
			name:     "enhanced data before registry",
			metadata: map[string]any{},
			enhanced: &models.EnhancedData{ModelName: "gpt-4o-mini"},
			source:   fakeSource{models: map[models.MetricKind]string{models.KindLLM: "claude-3"}},
			expected: "gpt-4o-mini",
		},
		{
			name:     "unknown enhanced data skipped",
			metadata: map[string]any{"model_name": "unknown"},
			enhanced: &models.EnhancedData{ModelName: "unknown"},
			source:   fakeSource{models: map[models.MetricKind]string{models.KindLLM: "claude-3"}},
			expected: "claude-3",
		},
		{
			name:     "nothing known",
			metadata: map[string]any{},
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := &models.ConversationTurn{
				TurnID:          "turn_1",
				EnhancedLLMData: tt.enhanced,
				OtelSpans:       []models.Span{{SpanID: "s", Operation: "llm", Metadata: tt.metadata}},
			}
			var seen string
			pricer := PricerFunc(func(s models.Span) (float64, string, error) {
				seen = Text(s.Metadata["model_name"])
				return 0, "", nil
			})

			NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, tt.source)

			assert.Equal(t, tt.expected, seen)
		})
	}
}

func TestAnnotate_TTSUsesVoice(t *testing.T) {
	turn := &models.ConversationTurn{
		TurnID:    "turn_1",
		OtelSpans: []models.Span{{SpanID: "s", Operation: "tts", Metadata: map[string]any{"characters_count": 10}}},
	}
	var seen string
	pricer := PricerFunc(func(s models.Span) (float64, string, error) {
		seen = Text(s.Metadata["model_name"])
		return 0, "", nil
	})

	NewAnnotator(pricer, zerolog.Nop()).Annotate(turn, fakeSource{voice: "rachel"})

	assert.Equal(t, "rachel", seen)
	_, mutated := turn.OtelSpans[0].Metadata["model_name"]
	assert.False(t, mutated, "stored span metadata must not change")
}

func TestDuration(t *testing.T) {
	spans := []models.Span{
		{StartTime: 10.0, DurationMs: 200},
		{StartTime: 9.5, DurationMs: 100},
		{StartTime: 10.25, DurationMs: 750},
	}
	assert.Equal(t, int64(1500), Duration(spans))
	assert.Equal(t, int64(0), Duration(nil))
}

func TestFallbackCost_AllOperations(t *testing.T) {
	spans := []models.Span{
		{Operation: "llm", Metadata: map[string]any{"prompt_tokens": 1000, "completion_tokens": 500}},
		{Operation: "tts", Metadata: map[string]any{"characters_count": 100.0}},
		{Operation: "stt", Metadata: map[string]any{"audio_duration": 36.0}},
		{Operation: "eou", Metadata: map[string]any{"end_of_utterance_delay": 0.4}},
	}
	// 0.0025 + 0.002 + 0.005
	assert.Equal(t, 0.0095, FallbackCost(spans))
}

func TestSpanFromMetrics(t *testing.T) {
	span := SpanFromMetrics(&models.STTMetrics{AudioDuration: 1.5, Duration: 0.25, Timestamp: 42, RequestID: "req-1"}, time.Now())

	assert.Equal(t, "stt", span.Operation)
	assert.Regexp(t, `^span_stt_[0-9a-f]{8}$`, span.SpanID)
	assert.Equal(t, 42.0, span.StartTime)
	assert.Equal(t, int64(250), span.DurationMs)
	assert.Equal(t, models.SpanStatusSuccess, span.Status)
	assert.Equal(t, "req-1", span.Metadata["request_id"])
}

func TestEnsureTraceID(t *testing.T) {
	turn := &models.ConversationTurn{}
	EnsureTraceID(turn)
	assert.Regexp(t, `^trace_[0-9a-f]{16}$`, turn.TraceID)

	first := turn.TraceID
	EnsureTraceID(turn)
	assert.Equal(t, first, turn.TraceID)
}
