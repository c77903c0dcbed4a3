package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/turns"
)

// ErrSessionExported is returned for events on a session whose turns were
// already handed to the exporter.
var ErrSessionExported = errors.New("session already exported")

// handoffMarkers identify agent messages that transfer the call.
var handoffMarkers = []string{"[Handing off to", "[Handing back to", "handoff_to_", "transfer_to_"}

// Data is the call-level state of a session outside its turns.
type Data struct {
	SessionID        string
	CallID           string
	AgentID          string
	CustomerNumber   string
	StartedAt        time.Time
	EndedAt          time.Time
	Transcript       []models.TranscriptEntry
	UserMessages     int
	AgentMessages    int
	Handoffs         int
	Errors           []string
	CallSuccess      *bool
	RecordingURL     string
	DynamicVariables map[string]any
	Evaluation       string
}

// Session holds everything known about one call. All handlers serialize on
// the session lock.
type Session struct {
	mu sync.Mutex

	data        Data
	registry    *Registry
	collector   *turns.Collector
	interceptor *bugreport.Interceptor

	now    func() time.Time
	logger zerolog.Logger
}

type sessionDeps struct {
	bugReport bugreport.Config
	pricer    trace.Pricer
	sink      bugreport.Sink
	now       func() time.Time
	logger    zerolog.Logger
}

// turnView lets the interceptor read the collector that is created after it.
type turnView struct{ s *Session }

func (v turnView) LastCompleted() *models.ConversationTurn {
	if v.s.collector == nil {
		return nil
	}
	return v.s.collector.LastCompleted()
}

func (v turnView) Turns() []*models.ConversationTurn {
	if v.s.collector == nil {
		return nil
	}
	return v.s.collector.Turns()
}

func newSession(id string, deps sessionDeps) (*Session, error) {
	s := &Session{
		data: Data{
			SessionID: id,
			CallID:    id,
			StartedAt: deps.now(),
		},
		registry: NewRegistry(),
		now:      deps.now,
		logger:   logging.WithSession(deps.logger, id),
	}

	var opts []bugreport.Option
	opts = append(opts, bugreport.WithClock(deps.now))
	if deps.sink != nil {
		opts = append(opts, bugreport.WithSink(deps.sink))
	}
	interceptor, err := bugreport.New(id, deps.bugReport, turnView{s}, deps.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("bug report interceptor: %w", err)
	}
	s.interceptor = interceptor

	colOpts := []turns.Option{
		turns.WithClassifier(interceptor),
		turns.WithRegistry(s.registry),
		turns.WithClock(deps.now),
	}
	if deps.pricer != nil {
		colOpts = append(colOpts, turns.WithPricer(deps.pricer))
	}
	s.collector = turns.NewCollector(id, deps.logger, colOpts...)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.data.SessionID
}

// Start applies the call identity and pipeline description.
func (s *Session) Start(start *models.SessionStart) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if start.CallID != "" {
		s.data.CallID = start.CallID
	}
	s.data.AgentID = start.AgentID
	s.data.CustomerNumber = start.CustomerNumber
	s.data.DynamicVariables = start.DynamicVariables
	s.data.Evaluation = start.Evaluation
	s.registry.Load(start.Models)

	s.logger.Info().
		Str("callId", s.data.CallID).
		Str("agentId", s.data.AgentID).
		Str("llm", s.registry.DetectedModel(models.KindLLM)).
		Str("tts", s.registry.DetectedModel(models.KindTTS)).
		Msg("Session started")
}

// OnConversationItem records a committed user or assistant message.
func (s *Session) OnConversationItem(role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return ErrSessionExported
	}

	if err := s.collector.OnConversationItem(role, text); err != nil {
		return err
	}
	s.data.Transcript = append(s.data.Transcript, models.TranscriptEntry{
		Role:      role,
		Content:   text,
		Timestamp: trace.UnixSeconds(s.now()),
	})
	switch role {
	case models.RoleUser:
		s.data.UserMessages++
	case models.RoleAssistant:
		s.data.AgentMessages++
		for _, marker := range handoffMarkers {
			if strings.Contains(text, marker) {
				s.data.Handoffs++
				break
			}
		}
	}
	return nil
}

// OnUserTranscript runs a recognized utterance through the bug-report
// interceptor before it can become part of the conversation.
func (s *Session) OnUserTranscript(ctx context.Context, text string) (bugreport.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return bugreport.Decision{}, ErrSessionExported
	}
	return s.interceptor.Process(ctx, text), nil
}

// OnMetrics routes a metrics snapshot to the turn collector.
func (s *Session) OnMetrics(p *models.MetricsPayload) error {
	m, err := p.ToMetrics()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return ErrSessionExported
	}
	s.collector.OnMetrics(m)
	return nil
}

// OnFunctionCalls records tool calls requested by the model.
func (s *Session) OnFunctionCalls(calls []models.FunctionCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return ErrSessionExported
	}
	s.collector.OnFunctionCalls(calls)
	return nil
}

// OnToolsExecuted records executed tools.
func (s *Session) OnToolsExecuted(execs []models.ToolExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return ErrSessionExported
	}
	s.collector.OnToolsExecuted(execs)
	return nil
}

// OnState records a user or agent state transition.
func (s *Session) OnState(eventType models.EventType, oldState, newState string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return ErrSessionExported
	}
	if eventType == models.EventUserState {
		s.collector.OnUserState(oldState, newState)
	} else {
		s.collector.OnAgentState(oldState, newState)
	}
	return nil
}

// OnClose marks the call finished, successfully unless errMsg is set.
func (s *Session) OnClose(errMsg, recordingURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := errMsg == ""
	s.data.CallSuccess = &ok
	s.data.EndedAt = s.now()
	if !ok {
		s.data.Errors = append(s.data.Errors, "Session Error: "+errMsg)
	}
	if recordingURL != "" {
		s.data.RecordingURL = recordingURL
	}
	s.logger.Info().Bool("success", ok).Msg("Session closed")
}

// View is a read-only snapshot of a live session.
type View struct {
	SessionID      string                    `json:"session_id"`
	CallID         string                    `json:"call_id"`
	AgentID        string                    `json:"agent_id"`
	Turns          []models.ConversationTurn `json:"turns"`
	Current        *models.ConversationTurn  `json:"current_turn,omitempty"`
	Pending        int                       `json:"pending_metrics"`
	BugReportState string                    `json:"bug_report_state"`
	BugReports     []models.BugReport        `json:"bug_reports"`
	UserState      string                    `json:"user_state,omitempty"`
	AgentState     string                    `json:"agent_state,omitempty"`
	Formatted      string                    `json:"formatted_transcript"`
}

// Snapshot copies the session state without finalizing it.
func (s *Session) Snapshot() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return View{}, ErrSessionExported
	}

	completed := s.collector.Turns()
	v := View{
		SessionID:      s.data.SessionID,
		CallID:         s.data.CallID,
		AgentID:        s.data.AgentID,
		Turns:          make([]models.ConversationTurn, len(completed)),
		Pending:        s.collector.Correlator().PendingCount(),
		BugReportState: s.interceptor.State().String(),
		BugReports:     s.interceptor.Reports(),
	}
	for i, t := range completed {
		v.Turns[i] = *t
	}
	if cur := s.collector.Current(); cur != nil {
		c := *cur
		v.Current = &c
	}
	v.UserState, v.AgentState = s.collector.States()
	v.Formatted = turns.FormatTranscript(v.Turns)
	return v, nil
}

// detached is what a session hands to the exporter.
type detached struct {
	data      Data
	turns     []models.ConversationTurn
	formatted string
	registry  map[string]any
	reports   []models.BugReport
	bugLog    []models.BugReportEntry
}

// detach finalizes the turns and drops the collector so later events are
// rejected. It fails if the session was already detached.
func (s *Session) detach(recordingURL string) (*detached, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collector == nil {
		return nil, ErrSessionExported
	}

	finalized := s.collector.Finalize()
	s.collector = nil

	if s.data.EndedAt.IsZero() {
		s.data.EndedAt = s.now()
	}
	if recordingURL != "" {
		s.data.RecordingURL = recordingURL
	}
	return &detached{
		data:      s.data,
		turns:     finalized,
		formatted: turns.FormatTranscript(finalized),
		registry:  s.registry.Snapshot(),
		reports:   s.interceptor.Reports(),
		bugLog:    s.interceptor.Log(),
	}, nil
}
