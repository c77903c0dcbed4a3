package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

type recordedSpan struct {
	oteltrace.Span
	name   string
	parent *recordedSpan
	start  time.Time
	end    time.Time
	attrs  []attribute.KeyValue
	status codes.Code
	desc   string
}

func (s *recordedSpan) SetStatus(code codes.Code, desc string) {
	s.status, s.desc = code, desc
}

func (s *recordedSpan) End(opts ...oteltrace.SpanEndOption) {
	cfg := oteltrace.NewSpanEndConfig(opts...)
	s.end = cfg.Timestamp()
}

func (s *recordedSpan) attr(key string) attribute.Value {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

type recordingTracer struct {
	oteltrace.Tracer
	spans []*recordedSpan
}

func newRecordingTracer() *recordingTracer {
	return &recordingTracer{Tracer: noop.NewTracerProvider().Tracer("test")}
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	cfg := oteltrace.NewSpanStartConfig(opts...)
	s := &recordedSpan{Span: noop.Span{}, name: name, start: cfg.Timestamp(), attrs: cfg.Attributes()}
	if p, ok := oteltrace.SpanFromContext(ctx).(*recordedSpan); ok {
		s.parent = p
	}
	t.spans = append(t.spans, s)
	return oteltrace.ContextWithSpan(ctx, s), s
}

func TestSpanBridge_RecordTurns(t *testing.T) {
	cost := 0.0123
	turns := []models.ConversationTurn{
		{TurnID: "turn_1"},
		{
			TurnID:       "turn_2",
			TraceID:      "trace-abc",
			TraceCostUSD: &cost,
			BugReport:    true,
			OtelSpans: []models.Span{
				{SpanID: "s1", Operation: "llm", StartTime: 100, DurationMs: 1500, Status: "success"},
				{SpanID: "s2", Operation: "tts", StartTime: 101, DurationMs: 200, Status: "error",
					Metadata: map[string]any{"error_message": "boom"}},
			},
		},
	}

	tracer := newRecordingTracer()
	NewSpanBridge(tracer).RecordTurns(context.Background(), "sess-1", turns)

	require.Len(t, tracer.spans, 3)
	root := tracer.spans[0]
	assert.Equal(t, "turn", root.name)
	assert.Nil(t, root.parent)
	assert.Equal(t, time.Unix(100, 0).UTC(), root.start)
	assert.Equal(t, time.Unix(101, 500_000_000).UTC(), root.end)
	assert.Equal(t, "sess-1", root.attr("whispey.session_id").AsString())
	assert.Equal(t, "turn_2", root.attr("whispey.turn_id").AsString())
	assert.True(t, root.attr("whispey.bug_report").AsBool())
	assert.InDelta(t, cost, root.attr("whispey.cost_usd").AsFloat64(), 1e-9)

	llm, tts := tracer.spans[1], tracer.spans[2]
	assert.Same(t, root, llm.parent)
	assert.Equal(t, "llm", llm.name)
	assert.Equal(t, codes.Unset, llm.status)
	assert.Equal(t, time.Unix(101, 500_000_000).UTC(), llm.end)

	assert.Same(t, root, tts.parent)
	assert.Equal(t, codes.Error, tts.status)
	assert.Equal(t, "boom", tts.desc)
}

func TestSpanBridge_DefaultTracer(t *testing.T) {
	b := NewSpanBridge(nil)
	require.NotNil(t, b.tracer)

	b.RecordTurns(context.Background(), "sess-1", []models.ConversationTurn{
		{TurnID: "turn_1", OtelSpans: []models.Span{{Operation: "stt", StartTime: 1}}},
	})
}
