package observability

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

const tracerName = "github.com/PYPE-AI-MAIN/whispey/turns"

// SpanBridge replays finalized turns into an OpenTelemetry tracer: one
// "turn" span per turn with a child for each recorded stage span, using the
// recorded timestamps.
type SpanBridge struct {
	tracer oteltrace.Tracer
}

// NewSpanBridge uses tracer, or the global provider's tracer when nil.
func NewSpanBridge(tracer oteltrace.Tracer) *SpanBridge {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &SpanBridge{tracer: tracer}
}

// RecordTurns emits spans for every turn that has any.
func (b *SpanBridge) RecordTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn) {
	for _, turn := range turns {
		if len(turn.OtelSpans) == 0 {
			continue
		}
		b.recordTurn(ctx, sessionID, turn)
	}
}

func (b *SpanBridge) recordTurn(ctx context.Context, sessionID string, turn models.ConversationTurn) {
	start, end := turn.OtelSpans[0].StartTime, turn.OtelSpans[0].EndTime()
	for _, s := range turn.OtelSpans[1:] {
		start = math.Min(start, s.StartTime)
		end = math.Max(end, s.EndTime())
	}

	attrs := []attribute.KeyValue{
		attribute.String("whispey.session_id", sessionID),
		attribute.String("whispey.turn_id", turn.TurnID),
		attribute.String("whispey.trace_id", turn.TraceID),
		attribute.Bool("whispey.bug_report", turn.BugReport),
		attribute.Int("whispey.tool_calls", len(turn.ToolCalls)),
	}
	if turn.TraceCostUSD != nil {
		attrs = append(attrs, attribute.Float64("whispey.cost_usd", *turn.TraceCostUSD))
	}

	turnCtx, root := b.tracer.Start(ctx, "turn",
		oteltrace.WithTimestamp(unixTime(start)),
		oteltrace.WithAttributes(attrs...))

	for _, s := range turn.OtelSpans {
		_, child := b.tracer.Start(turnCtx, s.Operation,
			oteltrace.WithTimestamp(unixTime(s.StartTime)),
			oteltrace.WithAttributes(
				attribute.String("whispey.span_id", s.SpanID),
				attribute.String("whispey.operation", s.Operation),
				attribute.Int64("whispey.duration_ms", s.DurationMs),
			))
		if s.Status == models.SpanStatusError {
			child.SetStatus(codes.Error, spanError(s))
		}
		child.End(oteltrace.WithTimestamp(unixTime(s.EndTime())))
	}
	root.End(oteltrace.WithTimestamp(unixTime(end)))
}

func spanError(s models.Span) string {
	if msg, ok := s.Metadata["error_message"].(string); ok && msg != "" {
		return msg
	}
	return s.Operation + " failed"
}

func unixTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
