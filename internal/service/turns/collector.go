// Package turns reconstructs the ordered list of conversation turns of one
// session from conversation-item, metrics, tool and state events.
package turns

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/correlator"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// BugClassifier decides whether a user utterance belongs to a bug report
// rather than the conversation.
type BugClassifier interface {
	IsBugReport(text string) bool
}

// ModelRegistry exposes the session's detected models for enrichment and pricing.
type ModelRegistry interface {
	trace.ModelSource
	DetectedProvider(kind models.MetricKind) string
}

// Collector holds the turn state of one session. At most one turn is open at a
// time; a turn joins the ordered list when its agent response arrives, or at
// finalization. Collector is not safe for concurrent use.
type Collector struct {
	sessionID  string
	turns      []*models.ConversationTurn
	current    *models.ConversationTurn
	ids        *IDGenerator
	correlator *correlator.Correlator
	annotator  *trace.Annotator
	classifier BugClassifier
	registry   ModelRegistry

	userState  string
	agentState string
	dirty      bool

	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Collector.
type Option func(*Collector)

// WithClassifier sets the bug-report classifier consulted for user text.
func WithClassifier(c BugClassifier) Option {
	return func(col *Collector) { col.classifier = c }
}

// WithRegistry sets the session model registry.
func WithRegistry(r ModelRegistry) Option {
	return func(col *Collector) { col.registry = r }
}

// WithPricer sets the pricer used at finalization. Without one the fixed-rate formula applies.
func WithPricer(p trace.Pricer) Option {
	return func(col *Collector) {
		col.annotator = trace.NewAnnotator(p, col.logger)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(col *Collector) { col.now = now }
}

// NewCollector creates a collector for sessionID.
func NewCollector(sessionID string, logger zerolog.Logger, opts ...Option) *Collector {
	logger = logging.WithSession(logging.WithComponent(logger, "turn-collector"), sessionID)
	c := &Collector{
		sessionID: sessionID,
		ids:       NewIDGenerator(),
		now:       time.Now,
		logger:    logger,
		metrics:   metrics.DefaultMetrics,
	}
	c.annotator = trace.NewAnnotator(nil, logger)
	for _, opt := range opts {
		opt(c)
	}
	c.correlator = correlator.New(logger, correlator.WithClock(c.now), correlator.OnAttach(c.onAttached))
	return c
}

// OnConversationItem handles a user or assistant text event.
func (c *Collector) OnConversationItem(role, text string) error {
	switch role {
	case models.RoleUser:
		c.onUserText(text)
	case models.RoleAssistant:
		c.onAssistantText(text)
	default:
		return fmt.Errorf("unsupported conversation role %q", role)
	}
	c.dirty = true
	return nil
}

func (c *Collector) onUserText(text string) {
	if c.classifier != nil && c.classifier.IsBugReport(text) {
		if last := c.LastCompleted(); last != nil {
			last.BugReport = true
			c.logger.Info().Str("turnId", last.TurnID).Msg("Turn flagged by bug report")
		}
		return
	}

	turn := c.openTurn()
	turn.UserTranscript = text
	turn.UserTurnComplete = true
	c.correlator.Drain(models.KindSTT, turn)
	c.correlator.Drain(models.KindEOU, turn)

	c.safely("stt_text", func() {
		fillFromText(c.enhanced(turn, models.KindSTT), text, c.now(), false)
	})
}

func (c *Collector) onAssistantText(text string) {
	turn := c.openTurn()
	turn.AgentResponse = text
	turn.AgentTurnComplete = true
	c.correlator.Drain(models.KindLLM, turn)
	c.correlator.Drain(models.KindTTS, turn)

	c.safely("llm_text", func() {
		fillFromText(c.enhanced(turn, models.KindLLM), text, c.now(), false)
	})
	c.safely("tts_text", func() {
		fillFromText(c.enhanced(turn, models.KindTTS), text, c.now(), true)
	})

	c.turns = append(c.turns, turn)
	c.current = nil
	c.metrics.RecordTurnCompleted()
	c.logger.Debug().Str("turnId", turn.TurnID).Msg("Turn completed")
}

func (c *Collector) openTurn() *models.ConversationTurn {
	if c.current == nil {
		c.current = &models.ConversationTurn{
			TurnID:    c.ids.Next(),
			Timestamp: trace.UnixSeconds(c.now()),
			OtelSpans: []models.Span{},
			ToolCalls: []models.ToolCall{},
		}
	}
	return c.current
}

// OnMetrics routes a metrics snapshot through the correlator. A buffered
// snapshot enriches its turn only once it is attached.
func (c *Collector) OnMetrics(m models.Metrics) {
	c.correlator.Record(m, c.current, c.LastCompleted())
	c.dirty = true
}

func (c *Collector) onAttached(turn *models.ConversationTurn, m models.Metrics) {
	c.safely(string(m.Kind())+"_metrics", func() {
		c.enrichFromMetrics(turn, m)
	})
}

// OnUserState records a user state transition on the open turn.
func (c *Collector) OnUserState(oldState, newState string) {
	c.userState = newState
	c.recordState("user_state", oldState, newState)
}

// OnAgentState records an agent state transition on the open turn.
func (c *Collector) OnAgentState(oldState, newState string) {
	c.agentState = newState
	c.recordState("agent_state", oldState, newState)
}

func (c *Collector) recordState(kind, oldState, newState string) {
	if c.current == nil {
		return
	}
	c.current.StateEvents = append(c.current.StateEvents, models.StateEvent{
		Type:      kind,
		OldState:  oldState,
		NewState:  newState,
		Timestamp: trace.UnixSeconds(c.now()),
	})
	c.dirty = true
}

// States returns the last observed user and agent states.
func (c *Collector) States() (user, agent string) {
	return c.userState, c.agentState
}

// Current returns the open turn, or nil.
func (c *Collector) Current() *models.ConversationTurn {
	return c.current
}

// LastCompleted returns the most recently appended turn, or nil.
func (c *Collector) LastCompleted() *models.ConversationTurn {
	if len(c.turns) == 0 {
		return nil
	}
	return c.turns[len(c.turns)-1]
}

// Turns returns the appended turns in order. The slice is a copy; the turns are not.
func (c *Collector) Turns() []*models.ConversationTurn {
	out := make([]*models.ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Correlator exposes the pending buffer for inspection.
func (c *Collector) Correlator() *correlator.Correlator {
	return c.correlator
}

// Finalize closes the open turn, flushes pending metrics and annotates every
// turn with trace duration and cost. Calling it again without new events is a no-op.
func (c *Collector) Finalize() []models.ConversationTurn {
	if c.dirty {
		if c.current != nil {
			c.turns = append(c.turns, c.current)
			c.current = nil
		}
		c.correlator.Flush(c.turns)
		for _, turn := range c.turns {
			c.annotator.Annotate(turn, c.registry)
		}
		c.dirty = false
		c.logger.Info().Int("turns", len(c.turns)).Msg("Session turns finalized")
	}

	out := make([]models.ConversationTurn, len(c.turns))
	for i, t := range c.turns {
		out[i] = *t
	}
	return out
}

// safely runs a best-effort enrichment step; a panic is logged and swallowed.
func (c *Collector) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordEnrichmentError(step)
			c.logger.Error().Interface("panic", r).Str("step", step).Msg("Enrichment step failed")
		}
	}()
	fn()
}
