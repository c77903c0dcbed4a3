// Package mock provides a scripted recognizer that replays a fixed list of
// utterances, one audio frame per partial, for simulations and tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/PYPE-AI-MAIN/whispey/internal/service/stt"
)

// ErrScriptExhausted is returned when audio arrives after the last utterance.
var ErrScriptExhausted = errors.New("mock recognizer script exhausted")

// Utterance is one scripted recognition result.
type Utterance struct {
	Partials   []string `json:"partials,omitempty"`
	Final      string   `json:"final"`
	Confidence float64  `json:"confidence,omitempty"`
	// Fail makes the recognizer report an error instead of a final.
	Fail bool `json:"fail,omitempty"`
}

// BugReportScript is a short call in which the user files a bug report.
var BugReportScript = []Utterance{
	{Partials: []string{"where", "where is my"}, Final: "where is my order", Confidence: 0.94},
	{Partials: []string{"I found"}, Final: "I found a bug", Confidence: 0.97},
	{Partials: []string{"the date"}, Final: "the delivery date is wrong", Confidence: 0.91},
	{Final: "feedback over", Confidence: 0.98},
	{Partials: []string{"thank"}, Final: "thank you", Confidence: 0.99},
}

// Adapter implements stt.Adapter. Each SendAudio emits the next partial of
// the current utterance; the frame after the last partial emits the final
// and an end of utterance.
type Adapter struct {
	mu      sync.Mutex
	cb      stt.Callback
	script  []Utterance
	current int
	partial int
	frames  int
	closed  bool
}

// New creates a recognizer that replays script.
func New(script []Utterance) *Adapter {
	return &Adapter{script: script}
}

// Start registers the callback.
func (a *Adapter) Start(_ context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio advances the script by one step. Callbacks run synchronously
// after the adapter lock is released.
func (a *Adapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	if a.closed || a.cb == nil {
		a.mu.Unlock()
		return nil
	}
	if a.current >= len(a.script) {
		a.mu.Unlock()
		return ErrScriptExhausted
	}
	a.frames++
	cb := a.cb
	utt := a.script[a.current]

	if a.partial < len(utt.Partials) {
		text := utt.Partials[a.partial]
		a.partial++
		a.mu.Unlock()
		cb.OnPartial(text)
		return nil
	}

	a.current++
	a.partial = 0
	a.mu.Unlock()

	if utt.Fail {
		cb.OnError(errors.New("mock recognition failure"))
		return nil
	}
	cb.OnFinal(utt.Final, utt.Confidence)
	cb.OnEndOfUtterance()
	return nil
}

// Steps returns how many SendAudio calls are needed to play the whole script.
func Steps(script []Utterance) int {
	n := 0
	for _, u := range script {
		n += len(u.Partials) + 1
	}
	return n
}

// Remaining returns the number of utterances not yet finalized.
func (a *Adapter) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.script) - a.current
}

// Close ends the session. An utterance in progress is finalized with the
// text it would have produced.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cb := a.cb
	var pending *Utterance
	if a.partial > 0 && a.current < len(a.script) {
		u := a.script[a.current]
		pending = &u
		a.current++
	}
	a.mu.Unlock()

	if pending != nil && cb != nil && !pending.Fail {
		cb.OnFinal(pending.Final, pending.Confidence)
	}
	return nil
}
