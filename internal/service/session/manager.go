// Package session owns the live voice sessions of the service: it creates
// them, dispatches inbound events to their components and hands finished
// sessions to the exporter.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/metrics"
	"github.com/PYPE-AI-MAIN/whispey/internal/schema"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/evaluation"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// ErrUnknownEventType is returned for envelopes the manager cannot dispatch.
var ErrUnknownEventType = errors.New("unknown event type")

// Exporter sends a finished call log.
type Exporter interface {
	Export(ctx context.Context, log *models.CallLog, apiKey string) export.Result
}

// Publisher receives call summaries and completed bug reports.
type Publisher interface {
	PublishCallLog(ctx context.Context, summary models.CallSummary) error
	PublishBugReport(ctx context.Context, report models.BugReport) error
}

// TurnRecorder receives the finalized turns of an exported session.
type TurnRecorder interface {
	RecordTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn)
}

// Config holds per-session settings.
type Config struct {
	BugReport      bugreport.Config
	Environment    string
	TranscriptType string
}

// ExportOptions are supplied by the caller of an export.
type ExportOptions struct {
	RecordingURL string
	APIKey       string
}

// Manager dispatches events to sessions held in a Store.
type Manager struct {
	store     *Store
	cfg       Config
	validator *schema.Validator
	exporter  Exporter
	pricer    trace.Pricer
	evaluator *evaluation.Runner
	publisher Publisher
	recorder  TurnRecorder
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithPricer sets the dynamic pricer used at finalization.
func WithPricer(p trace.Pricer) Option {
	return func(m *Manager) { m.pricer = p }
}

// WithEvaluator enables evaluation of sessions that request it.
func WithEvaluator(r *evaluation.Runner) Option {
	return func(m *Manager) { m.evaluator = r }
}

// WithPublisher publishes call summaries and bug reports.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithTurnRecorder forwards finalized turns to r on export.
func WithTurnRecorder(r TurnRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager with an empty store.
func NewManager(cfg Config, exporter Exporter, logger zerolog.Logger, opts ...Option) *Manager {
	if cfg.TranscriptType == "" {
		cfg.TranscriptType = "agent"
	}
	m := &Manager{
		store:     NewStore(),
		cfg:       cfg,
		validator: schema.New(),
		exporter:  exporter,
		now:       time.Now,
		logger:    logging.WithComponent(logger, "session-manager"),
		metrics:   metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the session store.
func (m *Manager) Store() *Store {
	return m.store
}

// Session returns the live session with id.
func (m *Manager) Session(id string) (*Session, error) {
	return m.store.Get(id)
}

// IDs lists live session ids in sorted order.
func (m *Manager) IDs() []string {
	return m.store.IDs()
}

// Snapshot returns the current view of a live session.
func (m *Manager) Snapshot(id string) (View, error) {
	s, err := m.store.Get(id)
	if err != nil {
		return View{}, err
	}
	return s.Snapshot()
}

func (m *Manager) getOrCreate(id string) (*Session, error) {
	if s, err := m.store.Get(id); err == nil {
		return s, nil
	}
	var sink bugreport.Sink
	if m.publisher != nil {
		sink = m.publisher
	}
	s, err := newSession(id, sessionDeps{
		bugReport: m.cfg.BugReport,
		pricer:    m.pricer,
		sink:      sink,
		now:       m.now,
		logger:    m.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := m.store.Add(s); err != nil {
		if errors.Is(err, ErrSessionExists) {
			return m.store.Get(id)
		}
		return nil, err
	}
	m.metrics.RecordSessionStart()
	return s, nil
}

// Handle validates and dispatches one event.
func (m *Manager) Handle(ctx context.Context, env models.Envelope) (models.EventResult, error) {
	res := models.EventResult{SessionID: env.SessionID, Type: env.Type}
	if err := m.validator.Validate(&env); err != nil {
		m.metrics.RecordEventError("invalid")
		return res, err
	}
	m.metrics.RecordEvent(string(env.Type))

	if env.Type == models.EventExport {
		out, err := m.Export(ctx, env.SessionID, ExportOptions{RecordingURL: env.RecordingURL})
		if err != nil {
			m.metrics.RecordEventError("export")
			return res, err
		}
		res.Export = out.Map()
		return res, nil
	}

	s, err := m.getOrCreate(env.SessionID)
	if err != nil {
		m.metrics.RecordEventError("session")
		return res, err
	}

	switch env.Type {
	case models.EventSessionStart:
		s.Start(env.Start)
	case models.EventConversationItem:
		err = s.OnConversationItem(env.Role, env.Text)
	case models.EventUserTranscript:
		var d bugreport.Decision
		d, err = s.OnUserTranscript(ctx, env.Text)
		res.Suppressed = d.Suppressed()
		res.Say = d.Say
	case models.EventMetrics:
		err = s.OnMetrics(env.Metrics)
	case models.EventFunctionCallsCollected:
		err = s.OnFunctionCalls(env.FunctionCalls)
	case models.EventFunctionToolsExecuted:
		err = s.OnToolsExecuted(env.Tools)
	case models.EventUserState, models.EventAgentState:
		err = s.OnState(env.Type, env.OldState, env.NewState)
	case models.EventClose:
		s.OnClose(env.Error, env.RecordingURL)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
	if err != nil {
		m.metrics.RecordEventError(string(env.Type))
		m.logger.Warn().Err(err).Str("sessionId", env.SessionID).Str("type", string(env.Type)).Msg("Event not applied")
	}
	return res, err
}

// Export finalizes the session, sends its call log and removes it from the
// store. Transport and credential failures are reported in the Result; the
// error is only set when the session cannot be exported at all.
func (m *Manager) Export(ctx context.Context, sessionID string, opts ExportOptions) (export.Result, error) {
	s, err := m.store.Get(sessionID)
	if err != nil {
		return export.Result{}, err
	}
	det, err := s.detach(opts.RecordingURL)
	if err != nil {
		return export.Result{}, err
	}
	logger := logging.WithCall(m.logger, sessionID, det.data.CallID, det.data.AgentID)

	callLog := m.buildCallLog(det)
	if det.data.Evaluation != "" && m.evaluator != nil {
		eval := m.evaluator.Run(ctx, det.data.Evaluation, evaluation.Input{Transcript: det.data.Transcript})
		callLog.Metadata["evaluation"] = eval
	}

	if m.recorder != nil {
		m.recorder.RecordTurns(ctx, sessionID, det.turns)
	}

	res := m.exporter.Export(ctx, callLog, opts.APIKey)
	m.metrics.RecordSessionExported(res.Success)
	logger.Info().
		Bool("success", res.Success).
		Str("method", res.UploadMethod).
		Int("turns", len(det.turns)).
		Msg("Session exported")

	if m.publisher != nil {
		summary := callSummary(sessionID, callLog, det, res, m.now())
		if err := m.publisher.PublishCallLog(ctx, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish call summary")
		}
	}

	if m.store.Delete(sessionID) {
		m.metrics.RecordSessionRemoved()
	}
	return res, nil
}

// Shutdown exports every live session and waits for background sends.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, id := range m.store.IDs() {
		if _, err := m.Export(ctx, id, ExportOptions{}); err != nil {
			m.logger.Warn().Err(err).Str("sessionId", id).Msg("Session not exported at shutdown")
		}
	}

	w, ok := m.exporter.(interface{ Wait() })
	if !ok {
		return nil
	}
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) buildCallLog(det *detached) *models.CallLog {
	d := det.data
	duration := d.EndedAt.Sub(d.StartedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	reason := ""
	if d.CallSuccess != nil && !*d.CallSuccess {
		reason = "error"
	}

	metadata := map[string]any{
		"session_id":               d.SessionID,
		"usage":                    usage(det.turns),
		"duration_formatted":       formatDuration(duration),
		"extracted_model_info":     det.registry,
		"total_conversation_turns": len(det.turns),
		"user_messages":            d.UserMessages,
		"agent_messages":           d.AgentMessages,
		"handoffs":                 d.Handoffs,
		"errors":                   append([]string{}, d.Errors...),
		"bug_reports":              det.reports,
		"bug_report_log":           det.bugLog,
	}
	if d.CallSuccess != nil {
		metadata["call_success"] = *d.CallSuccess
	}

	transcript := d.Transcript
	if transcript == nil {
		transcript = []models.TranscriptEntry{}
	}

	return &models.CallLog{
		CallID:                 d.CallID,
		AgentID:                d.AgentID,
		CustomerNumber:         d.CustomerNumber,
		CallEndedReason:        reason,
		CallStartedAt:          export.Timestamp(d.StartedAt),
		CallEndedAt:            export.Timestamp(d.EndedAt),
		DurationSeconds:        duration,
		BillingDurationSeconds: math.Ceil(duration),
		RecordingURL:           d.RecordingURL,
		VoiceRecordingURL:      d.RecordingURL,
		TranscriptType:         m.cfg.TranscriptType,
		Environment:            m.cfg.Environment,
		TranscriptJSON:         transcript,
		TranscriptWithMetrics:  det.turns,
		FormattedTranscript:    det.formatted,
		TelemetryData:          export.BuildTelemetry(det.turns),
		Metadata:               metadata,
		DynamicVariables:       d.DynamicVariables,
	}
}

func usage(turns []models.ConversationTurn) map[string]any {
	var prompt, completion, chars int
	var audio float64
	for _, t := range turns {
		if t.LLMMetrics != nil {
			prompt += t.LLMMetrics.PromptTokens
			completion += t.LLMMetrics.CompletionTokens
		}
		if t.TTSMetrics != nil {
			chars += t.TTSMetrics.CharactersCount
		}
		if t.STTMetrics != nil {
			audio += t.STTMetrics.AudioDuration
		}
	}
	return map[string]any{
		"llm_prompt_tokens":     prompt,
		"llm_completion_tokens": completion,
		"tts_characters_count":  chars,
		"stt_audio_duration":    audio,
	}
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}

func callSummary(sessionID string, log *models.CallLog, det *detached, res export.Result, at time.Time) models.CallSummary {
	return models.CallSummary{
		SessionID:       sessionID,
		CallID:          log.CallID,
		AgentID:         log.AgentID,
		CallEndedReason: log.CallEndedReason,
		DurationSeconds: log.DurationSeconds,
		Summary:         export.Summarize(det.turns),
		Telemetry:       export.SummarizeTelemetry(log.TelemetryData),
		BugReports:      len(det.reports),
		ExportSucceeded: res.Success,
		ExportMethod:    res.UploadMethod,
		ExportError:     res.Error,
		ExportedAt:      export.Timestamp(at),
	}
}
