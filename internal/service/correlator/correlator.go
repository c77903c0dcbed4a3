// Package correlator attaches asynchronously reported pipeline metrics to the
// conversation turn they describe.
//
// Metric events and conversation text arrive on independent streams with no
// ordering guarantee. A snapshot lands on the open turn or the last completed
// turn when that turn already has the text the snapshot describes (user
// transcript for stt/eou, agent response for llm/tts). Otherwise it waits in a
// one-slot-per-kind pending buffer until Drain is called for a turn whose text
// has just been populated.
//
// A newer pending snapshot replaces an unconsumed older one of the same kind.
// That loss is counted and logged but not prevented.
package correlator

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// Attachment targets reported to metrics.
const (
	TargetCurrent = "current"
	TargetLast    = "last"
	TargetDrain   = "drain"
	TargetFlush   = "flush"
)

// Correlator holds the pending buffer for one session. It is not safe for
// concurrent use; the owning session serializes access.
type Correlator struct {
	pending  map[models.MetricKind]models.Metrics
	onAttach func(*models.ConversationTurn, models.Metrics)
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock overrides the time source used for spans of snapshots without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// OnAttach registers fn to run after a snapshot lands on a turn, whether
// directly or from the pending buffer.
func OnAttach(fn func(*models.ConversationTurn, models.Metrics)) Option {
	return func(c *Correlator) { c.onAttach = fn }
}

// New creates an empty correlator.
func New(logger zerolog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		pending: make(map[models.MetricKind]models.Metrics, len(models.MetricKinds)),
		now:     time.Now,
		logger:  logger,
		metrics: metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record attaches m to current or last, or buffers it. current and last may be nil.
// It returns the turn m was attached to, or nil when it was buffered.
func (c *Correlator) Record(m models.Metrics, current, last *models.ConversationTurn) *models.ConversationTurn {
	kind := m.Kind()

	if accepts(current, kind) {
		c.attach(current, m, TargetCurrent)
		return current
	}
	if accepts(last, kind) {
		c.attach(last, m, TargetLast)
		return last
	}

	_, overwrote := c.pending[kind]
	c.pending[kind] = m
	c.metrics.RecordMetricBuffered(string(kind), overwrote)
	if overwrote {
		c.logger.Warn().Str("kind", string(kind)).Msg("Pending metrics overwritten before being consumed")
	} else {
		c.logger.Debug().Str("kind", string(kind)).Msg("Metrics stored as pending")
	}
	return nil
}

// Drain moves a pending snapshot of kind onto turn if turn can take it.
// It reports whether anything was attached.
func (c *Correlator) Drain(kind models.MetricKind, turn *models.ConversationTurn) bool {
	m, ok := c.pending[kind]
	if !ok || turn == nil || turn.HasMetrics(kind) {
		return false
	}
	delete(c.pending, kind)
	c.attach(turn, m, TargetDrain)
	return true
}

// Flush attaches every remaining pending snapshot to the most recent turn
// lacking that kind, scanning turns newest to oldest. Snapshots with no such
// turn are dropped. The buffer is empty afterwards.
func (c *Correlator) Flush(turns []*models.ConversationTurn) {
	for _, kind := range models.MetricKinds {
		m, ok := c.pending[kind]
		if !ok {
			continue
		}
		delete(c.pending, kind)

		attached := false
		for i := len(turns) - 1; i >= 0; i-- {
			if !turns[i].HasMetrics(kind) {
				c.attach(turns[i], m, TargetFlush)
				attached = true
				break
			}
		}
		if !attached {
			c.logger.Warn().Str("kind", string(kind)).Msg("Pending metrics dropped at finalization, no turn to receive them")
		}
	}
}

// Pending returns the buffered snapshot of kind, if any.
func (c *Correlator) Pending(kind models.MetricKind) (models.Metrics, bool) {
	m, ok := c.pending[kind]
	return m, ok
}

// PendingCount returns the number of occupied buffer slots.
func (c *Correlator) PendingCount() int {
	return len(c.pending)
}

func accepts(turn *models.ConversationTurn, kind models.MetricKind) bool {
	return turn != nil && !turn.HasMetrics(kind) && turn.HasTextFor(kind)
}

func (c *Correlator) attach(turn *models.ConversationTurn, m models.Metrics, target string) {
	turn.SetMetrics(m)
	trace.EnsureTraceID(turn)
	turn.OtelSpans = append(turn.OtelSpans, trace.SpanFromMetrics(m, c.now()))

	c.metrics.RecordMetricAttached(string(m.Kind()), target)
	if c.onAttach != nil {
		c.onAttach(turn, m)
	}
	c.logger.Debug().
		Str("kind", string(m.Kind())).
		Str("turnId", turn.TurnID).
		Str("target", target).
		Msg("Metrics attached")
}
