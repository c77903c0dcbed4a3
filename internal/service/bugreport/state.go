package bugreport

import "errors"

// State represents the interceptor mode of one session.
type State int

const (
	// StateNormal passes utterances through to the conversation.
	StateNormal State = iota
	// StateCollecting suppresses utterances and records them as report details.
	StateCollecting
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateCollecting:
		return "COLLECTING"
	default:
		return "UNKNOWN"
	}
}

// Action tells the caller what to do with an utterance.
type Action int

const (
	// ActionPass hands the utterance to the turn pipeline unchanged.
	ActionPass Action = iota
	// ActionSuppress keeps the utterance out of the conversation.
	ActionSuppress
)

func (a Action) String() string {
	if a == ActionSuppress {
		return "SUPPRESS"
	}
	return "PASS"
}

// Sentinel errors.
var (
	ErrNoStartPhrases = errors.New("bug report enabled without start phrases")
	ErrNoEndPhrases   = errors.New("bug report enabled without end phrases")
	ErrInvalidPhrase  = errors.New("invalid trigger phrase")
)
