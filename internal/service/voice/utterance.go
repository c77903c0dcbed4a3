package voice

import (
	"errors"
	"fmt"
	"sync"
)

// UtteranceState is the lifecycle state of one recognized utterance.
type UtteranceState int

const (
	// UtteranceListening accepts partials and one final.
	UtteranceListening UtteranceState = iota
	// UtteranceCommitted means the final went to the session.
	UtteranceCommitted
	// UtteranceClosed is the normal terminal state.
	UtteranceClosed
	// UtteranceDropped is terminal; nothing from this utterance reaches the session.
	UtteranceDropped
)

func (s UtteranceState) String() string {
	switch s {
	case UtteranceListening:
		return "LISTENING"
	case UtteranceCommitted:
		return "COMMITTED"
	case UtteranceClosed:
		return "CLOSED"
	case UtteranceDropped:
		return "DROPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal reports whether no further results are accepted.
func (s UtteranceState) IsTerminal() bool {
	return s == UtteranceClosed || s == UtteranceDropped
}

var (
	ErrUtteranceClosed   = errors.New("utterance is closed")
	ErrAlreadyCommitted  = errors.New("utterance already committed")
	ErrPartialAfterFinal = errors.New("partial after final")
)

// utterance tracks LISTENING -> COMMITTED -> CLOSED, with DROPPED reachable
// from any non-terminal state.
type utterance struct {
	mu    sync.Mutex
	seq   int
	state UtteranceState
}

func newUtterance(seq int) *utterance {
	return &utterance{seq: seq}
}

func (u *utterance) Seq() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.seq
}

func (u *utterance) State() UtteranceState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *utterance) partial() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case UtteranceListening:
		return nil
	case UtteranceCommitted:
		return ErrPartialAfterFinal
	}
	return ErrUtteranceClosed
}

func (u *utterance) commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch u.state {
	case UtteranceListening:
		u.state = UtteranceCommitted
		return nil
	case UtteranceCommitted:
		return ErrAlreadyCommitted
	}
	return ErrUtteranceClosed
}

func (u *utterance) drop() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.IsTerminal() {
		return false
	}
	u.state = UtteranceDropped
	return true
}

func (u *utterance) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = UtteranceClosed
}

// next closes the utterance and opens the following one.
func (u *utterance) next() (closed int, prev UtteranceState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	closed, prev = u.seq, u.state
	u.seq++
	u.state = UtteranceListening
	return closed, prev
}
