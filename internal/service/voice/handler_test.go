package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/stt"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/stt/mock"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	started bool
	closed  bool
	audio   [][]byte
	cb      stt.Callback
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	m.started = true
	m.cb = cb
	return nil
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	m.audio = append(m.audio, audio)
	return nil
}

func (m *testAdapter) Close() error {
	m.closed = true
	return nil
}

// testPipeline records envelopes and suppresses texts listed in suppress.
type testPipeline struct {
	mu       sync.Mutex
	envs     []models.Envelope
	suppress map[string][]models.SpeechOutput
	err      error
}

func (p *testPipeline) Handle(_ context.Context, env models.Envelope) (models.EventResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.EventResult{}, p.err
	}
	p.envs = append(p.envs, env)
	res := models.EventResult{SessionID: env.SessionID, Type: env.Type}
	if say, ok := p.suppress[env.Text]; ok && env.Type == models.EventUserTranscript {
		res.Suppressed = true
		res.Say = say
	}
	return res, nil
}

type testSpeaker struct {
	said []models.SpeechOutput
	err  error
}

func (s *testSpeaker) Say(_ context.Context, out models.SpeechOutput) error {
	s.said = append(s.said, out)
	return s.err
}

func TestHandler_PassedFinalBecomesConversationItem(t *testing.T) {
	adapter := &testAdapter{}
	pipeline := &testPipeline{}
	handler := NewHandler("sess-1", adapter, pipeline, nil, zerolog.Nop())

	if err := handler.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adapter.started {
		t.Fatal("expected recognizer to be started")
	}

	handler.OnPartial("hel")
	handler.OnFinal("hello there", 0.9)

	if len(pipeline.envs) != 2 {
		t.Fatalf("expected 2 envelopes, got %d", len(pipeline.envs))
	}
	if pipeline.envs[0].Type != models.EventUserTranscript || pipeline.envs[0].Confidence != 0.9 {
		t.Errorf("expected user_transcript with confidence, got %+v", pipeline.envs[0])
	}
	item := pipeline.envs[1]
	if item.Type != models.EventConversationItem || item.Role != models.RoleUser || item.Text != "hello there" {
		t.Errorf("expected user conversation item, got %+v", item)
	}

	stats := handler.Stats()
	if stats.Passed != 1 || stats.Partials != 1 {
		t.Errorf("expected 1 passed and 1 partial, got %+v", stats)
	}
}

func TestHandler_SuppressedFinalIsSpokenNotRecorded(t *testing.T) {
	ack := models.SpeechOutput{Text: "Thanks, go ahead."}
	pipeline := &testPipeline{suppress: map[string][]models.SpeechOutput{"bug report": {ack}}}
	speaker := &testSpeaker{}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, speaker, zerolog.Nop())
	handler.Start(context.Background())

	handler.OnFinal("bug report", 1)

	if len(pipeline.envs) != 1 {
		t.Fatalf("expected only the transcript envelope, got %d", len(pipeline.envs))
	}
	if len(speaker.said) != 1 || speaker.said[0] != ack {
		t.Errorf("expected acknowledgement spoken, got %+v", speaker.said)
	}
	if handler.Stats().Suppressed != 1 {
		t.Errorf("expected 1 suppressed, got %d", handler.Stats().Suppressed)
	}
}

func TestHandler_SpeakerErrorCounted(t *testing.T) {
	pipeline := &testPipeline{suppress: map[string][]models.SpeechOutput{"bug report": {{Text: "ok"}}}}
	speaker := &testSpeaker{err: errors.New("tts down")}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, speaker, zerolog.Nop())

	handler.OnFinal("bug report", 1)

	if handler.Stats().SpeechErrors != 1 {
		t.Errorf("expected 1 speech error, got %d", handler.Stats().SpeechErrors)
	}
}

func TestHandler_PipelineErrorStopsUtterance(t *testing.T) {
	pipeline := &testPipeline{err: errors.New("closed")}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, nil, zerolog.Nop())

	handler.OnFinal("hello", 1)

	if handler.Stats().Passed != 0 {
		t.Errorf("expected nothing passed, got %d", handler.Stats().Passed)
	}
}

func TestHandler_FinalOnlyOncePerUtterance(t *testing.T) {
	pipeline := &testPipeline{}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, nil, zerolog.Nop())

	handler.OnFinal("first", 1)
	handler.OnFinal("second", 1)
	handler.OnPartial("late")

	if len(pipeline.envs) != 2 {
		t.Errorf("expected envelopes for one final only, got %d", len(pipeline.envs))
	}
	if _, state := handler.Utterance(); state != UtteranceCommitted {
		t.Errorf("expected COMMITTED, got %v", state)
	}
	if handler.Stats().Partials != 0 {
		t.Errorf("expected late partial ignored, got %d", handler.Stats().Partials)
	}
}

func TestHandler_EndOfUtteranceOpensNext(t *testing.T) {
	pipeline := &testPipeline{}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, nil, zerolog.Nop())

	handler.OnFinal("first", 1)
	handler.OnEndOfUtterance()
	handler.OnFinal("second", 1)

	seq, state := handler.Utterance()
	if seq != 2 || state != UtteranceCommitted {
		t.Errorf("expected utterance 2 COMMITTED, got %d %v", seq, state)
	}
	if handler.Stats().Utterances != 1 || handler.Stats().Passed != 2 {
		t.Errorf("unexpected stats: %+v", handler.Stats())
	}
}

func TestHandler_ErrorDropsUtterance(t *testing.T) {
	pipeline := &testPipeline{}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, nil, zerolog.Nop())

	handler.OnPartial("hal")
	handler.OnError(errors.New("stream reset"))
	handler.OnFinal("half a sentence", 0.4)

	if len(pipeline.envs) != 0 {
		t.Errorf("expected nothing sent after drop, got %d", len(pipeline.envs))
	}
	if handler.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", handler.Stats().Dropped)
	}

	handler.OnEndOfUtterance()
	handler.OnFinal("recovered", 0.9)
	if len(pipeline.envs) != 2 {
		t.Errorf("expected next utterance to pass, got %d envelopes", len(pipeline.envs))
	}
}

func TestHandler_MaxPartialsLimit(t *testing.T) {
	pipeline := &testPipeline{}
	handler := NewHandler("sess-1", &testAdapter{}, pipeline, nil, zerolog.Nop(),
		WithLimits(Limits{MaxPartials: 2}))

	handler.OnPartial("a")
	handler.OnPartial("a b")
	handler.OnPartial("a b c")

	if _, state := handler.Utterance(); state != UtteranceDropped {
		t.Errorf("expected DROPPED, got %v", state)
	}
	if handler.Drop("again") {
		t.Error("expected second drop to report false")
	}
}

func TestHandler_MaxDurationLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }
	adapter := &testAdapter{}
	handler := NewHandler("sess-1", adapter, &testPipeline{}, nil, zerolog.Nop(),
		WithClock(clock), WithLimits(Limits{MaxDuration: time.Minute}))
	handler.Start(context.Background())

	if err := handler.SendAudio(context.Background(), []byte("frame")); err != nil {
		t.Fatalf("first frame should succeed: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := handler.SendAudio(context.Background(), []byte("frame")); err == nil {
		t.Error("expected duration limit error")
	}
	if len(adapter.audio) != 1 {
		t.Errorf("expected 1 frame forwarded, got %d", len(adapter.audio))
	}
}

func TestHandler_Close(t *testing.T) {
	adapter := &testAdapter{}
	handler := NewHandler("sess-1", adapter, &testPipeline{}, nil, zerolog.Nop())

	if err := handler.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adapter.closed {
		t.Error("expected recognizer closed")
	}
	if _, state := handler.Utterance(); state != UtteranceClosed {
		t.Errorf("expected CLOSED, got %v", state)
	}
}

func TestHandler_ScriptedBugReportCall(t *testing.T) {
	manager := session.NewManager(session.Config{BugReport: bugreport.DefaultConfig()}, nil, zerolog.Nop())
	speaker := &testSpeaker{}
	recognizer := mock.New(mock.BugReportScript)
	handler := NewHandler("sess-voice", recognizer, manager, speaker, zerolog.Nop())

	ctx := context.Background()
	if err := handler.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < mock.Steps(mock.BugReportScript); i++ {
		if err := handler.SendAudio(ctx, []byte("frame")); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	stats := handler.Stats()
	if stats.Passed != 2 || stats.Suppressed != 3 {
		t.Errorf("expected 2 passed and 3 suppressed, got %+v", stats)
	}
	if stats.Utterances != len(mock.BugReportScript) {
		t.Errorf("expected %d utterances, got %d", len(mock.BugReportScript), stats.Utterances)
	}

	if len(speaker.said) != 2 {
		t.Fatalf("expected acknowledgement and continuation, got %+v", speaker.said)
	}
	if speaker.said[0].Text != bugreport.DefaultConfig().Acknowledgement {
		t.Errorf("expected acknowledgement, got %q", speaker.said[0].Text)
	}
	if speaker.said[1].Text != bugreport.DefaultConfig().FallbackMessage {
		t.Errorf("expected fallback continuation, got %q", speaker.said[1].Text)
	}
	for _, out := range speaker.said {
		if out.AddToHistory {
			t.Errorf("expected interceptor speech kept out of history: %+v", out)
		}
	}

	sess, err := manager.Session("sess-voice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, err := sess.Snapshot()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(view.BugReports) != 1 {
		t.Fatalf("expected 1 bug report, got %d", len(view.BugReports))
	}
	if view.BugReportState != bugreport.StateNormal.String() {
		t.Errorf("expected NORMAL, got %s", view.BugReportState)
	}
	if view.Current == nil || view.Current.UserTranscript != "thank you" {
		t.Errorf("expected open turn with last passed utterance, got %+v", view.Current)
	}
}
