// Package voice connects a streaming recognizer to the session pipeline.
// Committed utterances go through the bug-report interceptor first; only
// text the interceptor passes becomes a user conversation item.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/observability/logging"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/stt"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/trace"
)

// Pipeline consumes session events. session.Manager satisfies it.
type Pipeline interface {
	Handle(ctx context.Context, env models.Envelope) (models.EventResult, error)
}

// Speaker plays text to the caller.
type Speaker interface {
	Say(ctx context.Context, out models.SpeechOutput) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, out models.SpeechOutput) error

func (f SpeakerFunc) Say(ctx context.Context, out models.SpeechOutput) error { return f(ctx, out) }

// Limits bounds a single utterance. Zero disables a limit.
type Limits struct {
	MaxPartials int
	MaxDuration time.Duration
}

// DefaultLimits returns the limits used by NewHandler.
func DefaultLimits() Limits {
	return Limits{
		MaxPartials: 500,
		MaxDuration: 5 * time.Minute,
	}
}

// Stats counts what the handler did with recognizer output.
type Stats struct {
	Utterances   int
	Partials     int
	Passed       int
	Suppressed   int
	Dropped      int
	SpeechErrors int
}

// Handler implements stt.Callback for one session.
type Handler struct {
	sessionID  string
	recognizer stt.Adapter
	pipeline   Pipeline
	speaker    Speaker
	limits     Limits
	now        func() time.Time
	logger     zerolog.Logger

	utt *utterance

	mu        sync.Mutex
	ctx       context.Context
	startedAt time.Time
	partials  int
	stats     Stats
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) HandlerOption {
	return func(h *Handler) { h.limits = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler wires recognizer output for sessionID into pipeline. speaker may
// be nil, in which case interceptor speech is logged and discarded.
func NewHandler(sessionID string, recognizer stt.Adapter, pipeline Pipeline, speaker Speaker, logger zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		sessionID:  sessionID,
		recognizer: recognizer,
		pipeline:   pipeline,
		speaker:    speaker,
		limits:     DefaultLimits(),
		now:        time.Now,
		logger:     logging.WithSession(logging.WithComponent(logger, "voice"), sessionID),
		utt:        newUtterance(1),
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.now()
	return h
}

// Start begins recognition with h as the callback. Pipeline calls made from
// callbacks use ctx.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.startedAt = h.now()
	h.mu.Unlock()
	return h.recognizer.Start(ctx, h)
}

// SendAudio forwards a frame to the recognizer. Exceeding the utterance
// duration limit drops the utterance and returns an error.
func (h *Handler) SendAudio(ctx context.Context, frame []byte) error {
	h.mu.Lock()
	elapsed := h.now().Sub(h.startedAt)
	h.mu.Unlock()

	if h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		reason := fmt.Sprintf("max duration exceeded: %v > %v", elapsed, h.limits.MaxDuration)
		h.Drop(reason)
		return fmt.Errorf("utterance limit exceeded: %s", reason)
	}
	return h.recognizer.SendAudio(ctx, frame)
}

// Close stops the recognizer. A final flushed by the recognizer on close is
// still delivered.
func (h *Handler) Close() error {
	err := h.recognizer.Close()
	h.utt.close()
	return err
}

// Utterance returns the sequence number and state of the current utterance.
func (h *Handler) Utterance() (int, UtteranceState) {
	return h.utt.Seq(), h.utt.State()
}

// Stats returns a copy of the counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// OnPartial counts interim text. Partials never reach the session.
func (h *Handler) OnPartial(text string) {
	if err := h.utt.partial(); err != nil {
		h.logger.Debug().Err(err).Int("utterance", h.utt.Seq()).Msg("Partial ignored")
		return
	}

	h.mu.Lock()
	h.partials++
	h.stats.Partials++
	count := h.partials
	h.mu.Unlock()

	if h.limits.MaxPartials > 0 && count > h.limits.MaxPartials {
		h.Drop(fmt.Sprintf("max partials exceeded: %d > %d", count, h.limits.MaxPartials))
	}
}

// OnFinal sends the committed text to the session as a user transcript. If
// the interceptor passes it, it is also recorded as a user conversation item;
// any speech the interceptor asks for is played through the speaker.
func (h *Handler) OnFinal(text string, confidence float64) {
	if err := h.utt.commit(); err != nil {
		h.logger.Debug().Err(err).Int("utterance", h.utt.Seq()).Msg("Final ignored")
		return
	}

	h.mu.Lock()
	ctx := h.ctx
	h.mu.Unlock()

	res, err := h.pipeline.Handle(ctx, models.Envelope{
		SessionID:  h.sessionID,
		Type:       models.EventUserTranscript,
		Timestamp:  trace.UnixSeconds(h.now()),
		Text:       text,
		Confidence: confidence,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("User transcript rejected")
		return
	}

	for _, out := range res.Say {
		h.say(ctx, out)
	}

	if res.Suppressed {
		h.mu.Lock()
		h.stats.Suppressed++
		h.mu.Unlock()
		h.logger.Debug().Int("utterance", h.utt.Seq()).Msg("Utterance suppressed")
		return
	}

	if _, err := h.pipeline.Handle(ctx, models.Envelope{
		SessionID: h.sessionID,
		Type:      models.EventConversationItem,
		Timestamp: trace.UnixSeconds(h.now()),
		Role:      models.RoleUser,
		Text:      text,
	}); err != nil {
		h.logger.Error().Err(err).Msg("User conversation item rejected")
		return
	}
	h.mu.Lock()
	h.stats.Passed++
	h.mu.Unlock()
}

// OnEndOfUtterance closes the current utterance and opens the next one.
func (h *Handler) OnEndOfUtterance() {
	h.mu.Lock()
	partials := h.partials
	duration := h.now().Sub(h.startedAt)
	h.partials = 0
	h.startedAt = h.now()
	h.stats.Utterances++
	h.mu.Unlock()

	seq, state := h.utt.next()
	h.logger.Debug().
		Int("utterance", seq).
		Str("state", state.String()).
		Int("partials", partials).
		Dur("duration", duration).
		Msg("End of utterance")
}

// OnError drops the current utterance; nothing from it reaches the session.
func (h *Handler) OnError(err error) {
	seq, state := h.utt.Seq(), h.utt.State()
	dropped := h.utt.drop()
	if dropped {
		h.mu.Lock()
		h.stats.Dropped++
		h.mu.Unlock()
	}
	h.logger.Warn().
		Err(err).
		Int("utterance", seq).
		Str("previousState", state.String()).
		Bool("dropped", dropped).
		Msg("Recognition error")
}

// Drop abandons the current utterance. It returns false if the utterance
// was already terminal.
func (h *Handler) Drop(reason string) bool {
	seq, state := h.utt.Seq(), h.utt.State()
	dropped := h.utt.drop()
	if dropped {
		h.mu.Lock()
		h.stats.Dropped++
		h.mu.Unlock()
	}
	h.logger.Warn().
		Int("utterance", seq).
		Str("previousState", state.String()).
		Str("reason", reason).
		Msg("Utterance dropped")
	return dropped
}

func (h *Handler) say(ctx context.Context, out models.SpeechOutput) {
	if h.speaker == nil {
		h.logger.Info().Str("text", out.Text).Msg("No speaker configured; speech discarded")
		return
	}
	if err := h.speaker.Say(ctx, out); err != nil {
		h.mu.Lock()
		h.stats.SpeechErrors++
		h.mu.Unlock()
		h.logger.Error().Err(err).Msg("Speech output failed")
	}
}
