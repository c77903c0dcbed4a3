// Package stt defines the contract between a speech recognizer and the
// session pipeline. Recognition itself happens in the host; the service only
// consumes recognized text.
package stt

import "context"

// Callback receives recognition results.
type Callback interface {
	// OnPartial is called with interim text. Partials never become turns.
	OnPartial(text string)

	// OnFinal is called once per utterance with the committed text.
	OnFinal(text string, confidence float64)

	// OnEndOfUtterance is called when the speaker stops talking.
	OnEndOfUtterance()

	// OnError is called when recognition fails; the current utterance is lost.
	OnError(err error)
}

// Adapter is a streaming recognizer.
type Adapter interface {
	Start(ctx context.Context, cb Callback) error
	SendAudio(ctx context.Context, audio []byte) error
	Close() error
}
