// Package trace builds span records for conversation turns and annotates
// finalized turns with trace duration and cost.
package trace

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// NewTraceID returns a fresh trace identifier of the form trace_<16 hex>.
func NewTraceID() string {
	return "trace_" + hexID(16)
}

// NewSpanID returns a fresh span identifier of the form span_<op>_<8 hex>.
func NewSpanID(op string) string {
	return "span_" + op + "_" + hexID(8)
}

// EnsureTraceID assigns a trace id to turn if it has none.
func EnsureTraceID(turn *models.ConversationTurn) {
	if turn.TraceID == "" {
		turn.TraceID = NewTraceID()
	}
}

// UnixSeconds converts t to fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// SpanFromMetrics builds the span recorded when m is attached to a turn.
// now supplies the start time when the snapshot carries none.
func SpanFromMetrics(m models.Metrics, now time.Time) models.Span {
	start := m.StartTime()
	if start == 0 {
		start = UnixSeconds(now)
	}
	op := string(m.Kind())
	return models.Span{
		SpanID:     NewSpanID(op),
		Operation:  op,
		StartTime:  start,
		DurationMs: int64(m.DurationSeconds() * 1000),
		Status:     models.SpanStatusSuccess,
		Metadata:   m.SpanMetadata(),
	}
}
