// Package bugreport implements the in-call bug-report mode. While a user is
// describing a problem their utterances are kept out of the conversation,
// collected into a report, and the agent's interrupted message is replayed
// when the report ends.
package bugreport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// replayWindow is how many recent turns are searched for an agent response
// when nothing was captured.
const replayWindow = 3

// Config holds trigger phrases and the utterances spoken by the interceptor.
type Config struct {
	Enabled            bool     `yaml:"enabled"`
	StartPhrases       []string `yaml:"start_phrases"`
	EndPhrases         []string `yaml:"end_phrases"`
	Acknowledgement    string   `yaml:"response"`
	ContinuationPrefix string   `yaml:"continuation_prefix"`
	FallbackMessage    string   `yaml:"fallback_message"`
	CollectionPrompt   string   `yaml:"collection_prompt"`
}

// DefaultConfig returns the stock English/Hindi triggers and responses.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		StartPhrases:       []string{"feedback start", "bug report", "report bug", "found a bug", "बग रिपोर्ट"},
		EndPhrases:         []string{"feedback over", "feedback end", "report over", "रिपोर्ट खत्म"},
		Acknowledgement:    "Thanks for reporting that. Please tell me the issue?",
		ContinuationPrefix: "So, as I was saying, ",
		FallbackMessage:    "So, as I was saying,",
	}
}

// TurnSource gives read access to the session's completed turns.
type TurnSource interface {
	LastCompleted() *models.ConversationTurn
	Turns() []*models.ConversationTurn
}

// Sink receives completed bug reports.
type Sink interface {
	PublishBugReport(ctx context.Context, report models.BugReport) error
}

// Decision is the outcome of processing one utterance.
type Decision struct {
	Action Action
	// Say lists utterances the host should speak, in order.
	Say []models.SpeechOutput
}

// Suppressed reports whether the utterance must not reach the conversation.
func (d Decision) Suppressed() bool {
	return d.Action == ActionSuppress
}

// Interceptor is the per-session bug-report state machine. It is safe for
// concurrent use.
type Interceptor struct {
	mu sync.RWMutex

	sessionID string
	cfg       Config
	matcher   *Matcher
	turns     TurnSource
	sink      Sink

	state State
	// current report being collected
	reportID      string
	startedAt     float64
	accumulator   []models.BugReportEntry
	captured      string
	flaggedTurnID string

	log        []models.BugReportEntry
	reports    []models.BugReport
	suppressed map[string]int

	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithSink publishes every completed report to s.
func WithSink(s Sink) Option {
	return func(i *Interceptor) { i.sink = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

// New creates an interceptor in StateNormal.
func New(sessionID string, cfg Config, turns TurnSource, logger zerolog.Logger, opts ...Option) (*Interceptor, error) {
	if cfg.Enabled && len(cfg.StartPhrases) == 0 {
		return nil, ErrNoStartPhrases
	}
	if cfg.Enabled && len(cfg.EndPhrases) == 0 {
		return nil, ErrNoEndPhrases
	}
	m, err := NewMatcher(cfg.StartPhrases, cfg.EndPhrases)
	if err != nil {
		return nil, err
	}

	i := &Interceptor{
		sessionID:  sessionID,
		cfg:        cfg,
		matcher:    m,
		turns:      turns,
		state:      StateNormal,
		suppressed: make(map[string]int),
		now:        time.Now,
		logger:     logging.WithSession(logging.WithComponent(logger, "bug-report"), sessionID),
		metrics:    metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Process classifies one recognized utterance and advances the state machine.
func (i *Interceptor) Process(ctx context.Context, text string) Decision {
	if !i.cfg.Enabled {
		return Decision{Action: ActionPass}
	}

	i.mu.Lock()
	var (
		d         Decision
		completed *models.BugReport
		reason    string
	)
	switch i.state {
	case StateNormal:
		if !i.matcher.MatchStart(text) {
			// Items for earlier suppressed utterances arrive before the next
			// utterance; anything left over was never committed.
			clear(i.suppressed)
			i.mu.Unlock()
			return Decision{Action: ActionPass}
		}
		d, reason = i.begin(text), "start"
	case StateCollecting:
		if i.matcher.MatchEnd(text) {
			d, completed = i.finish()
			reason = "end"
		} else {
			d, reason = i.collect(text), "detail"
		}
	}
	i.suppressed[text]++
	i.mu.Unlock()

	if completed != nil {
		i.publish(ctx, *completed)
	}
	i.metrics.RecordSuppressed(reason)
	return d
}

func (i *Interceptor) begin(text string) Decision {
	now := trace.UnixSeconds(i.now())
	i.captured = ""
	i.flaggedTurnID = ""
	if i.turns != nil {
		if last := i.turns.LastCompleted(); last != nil {
			last.BugReport = true
			i.captured = last.AgentResponse
			i.flaggedTurnID = last.TurnID
		}
	}

	i.reportID = uuid.NewString()
	i.startedAt = now
	i.accumulator = []models.BugReportEntry{{
		Kind:      models.BugEntryInitial,
		Text:      text,
		Timestamp: now,
		TurnID:    i.flaggedTurnID,
	}}
	i.state = StateCollecting
	i.metrics.RecordBugReportStarted()

	i.logger.Info().
		Str("reportId", i.reportID).
		Str("flaggedTurnId", i.flaggedTurnID).
		Bool("captured", i.captured != "").
		Msg("Bug report started")

	return Decision{
		Action: ActionSuppress,
		Say:    speech(i.cfg.Acknowledgement),
	}
}

func (i *Interceptor) collect(text string) Decision {
	i.accumulator = append(i.accumulator, models.BugReportEntry{
		Kind:      models.BugEntryDetail,
		Text:      text,
		Timestamp: trace.UnixSeconds(i.now()),
		TurnID:    i.flaggedTurnID,
	})
	i.logger.Debug().Str("reportId", i.reportID).Int("entries", len(i.accumulator)).Msg("Bug report detail collected")
	return Decision{
		Action: ActionSuppress,
		Say:    speech(i.cfg.CollectionPrompt),
	}
}

func (i *Interceptor) finish() (Decision, *models.BugReport) {
	report := &models.BugReport{
		SessionID:       i.sessionID,
		ReportID:        i.reportID,
		FlaggedTurnID:   i.flaggedTurnID,
		CapturedMessage: i.captured,
		Entries:         i.accumulator,
		StartedAt:       i.startedAt,
		CompletedAt:     trace.UnixSeconds(i.now()),
	}
	i.log = append(i.log, i.accumulator...)
	i.reports = append(i.reports, *report)
	i.accumulator = nil
	i.state = StateNormal
	i.metrics.RecordBugReportCompleted()

	msg := i.replayMessage()
	var say []models.SpeechOutput
	if msg != "" {
		say = speech(i.cfg.ContinuationPrefix + msg)
	} else {
		i.metrics.RecordReplayFallback()
		say = speech(i.cfg.FallbackMessage)
	}

	i.logger.Info().
		Str("reportId", report.ReportID).
		Int("entries", len(report.Entries)).
		Bool("replayed", msg != "").
		Msg("Bug report completed")

	return Decision{Action: ActionSuppress, Say: say}, report
}

// replayMessage looks up the interrupted agent message: the captured one,
// then the most recent flagged turn, then the last few turns.
func (i *Interceptor) replayMessage() string {
	if strings.TrimSpace(i.captured) != "" {
		return i.captured
	}
	if i.turns == nil {
		return ""
	}
	turns := i.turns.Turns()
	for k := len(turns) - 1; k >= 0; k-- {
		if turns[k].BugReport && strings.TrimSpace(turns[k].AgentResponse) != "" {
			return turns[k].AgentResponse
		}
	}
	for k := len(turns) - 1; k >= 0 && k >= len(turns)-replayWindow; k-- {
		if strings.TrimSpace(turns[k].AgentResponse) != "" {
			return turns[k].AgentResponse
		}
	}
	return ""
}

func (i *Interceptor) publish(ctx context.Context, report models.BugReport) {
	if i.sink == nil {
		return
	}
	if err := i.sink.PublishBugReport(ctx, report); err != nil {
		i.logger.Warn().Err(err).Str("reportId", report.ReportID).Msg("Failed to publish bug report")
	}
}

func speech(text string) []models.SpeechOutput {
	if text == "" {
		return nil
	}
	return []models.SpeechOutput{{Text: text, AddToHistory: false}}
}

// IsBugReport reports whether a user utterance belongs to a bug report:
// either it was suppressed by Process, or it contains a start trigger.
// A suppressed utterance is consumed by the first call that sees it and is
// forgotten once Process passes a later utterance.
func (i *Interceptor) IsBugReport(text string) bool {
	if !i.cfg.Enabled {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if n := i.suppressed[text]; n > 0 {
		if n == 1 {
			delete(i.suppressed, text)
		} else {
			i.suppressed[text] = n - 1
		}
		return true
	}
	return i.matcher.MatchStart(text)
}

// State returns the current mode.
func (i *Interceptor) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// CapturedMessage returns the agent message captured when the current or
// last report started.
func (i *Interceptor) CapturedMessage() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.captured
}

// Pending returns the entries of the report being collected.
func (i *Interceptor) Pending() []models.BugReportEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]models.BugReportEntry(nil), i.accumulator...)
}

// Log returns every entry of every completed report, in order.
func (i *Interceptor) Log() []models.BugReportEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]models.BugReportEntry(nil), i.log...)
}

// Reports returns the completed reports.
func (i *Interceptor) Reports() []models.BugReport {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]models.BugReport(nil), i.reports...)
}
