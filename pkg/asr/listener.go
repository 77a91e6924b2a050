// Package asr defines the speech-recognition capability used by voice-input
// actions.
//
// The engine treats recognition as an opaque stream of [Result] values
// arriving inside a capture window. How results are produced — an on-device
// recognizer, a streaming cloud API, a browser speech bridge — is entirely
// the implementation's concern. The engine opens a [Window], buffers every
// result that arrives before the window ends, and evaluates the buffer
// against the action's configured options.
//
// Implementations must be safe for concurrent use.
package asr

import (
	"context"
	"time"
)

// Result is one recognition event inside a capture window.
type Result struct {
	// Text is the recognized utterance.
	Text string

	// Confidence is the recognizer's own confidence in Text (0.0–1.0).
	// May be zero for recognizers that do not report it.
	Confidence float64

	// Intent is the NLU intent classification, when the recognizer performs
	// intent matching. Empty otherwise.
	Intent string

	// Entities are the entity labels recognized alongside Intent.
	Entities []string
}

// WindowConfig describes a new capture window.
type WindowConfig struct {
	// Duration is a hint for how long capture is expected to stay open.
	// Zero means the caller bounds the window itself and will call Close.
	Duration time.Duration

	// Language is the BCP-47 recognition language tag. Empty lets the
	// recognizer use its default.
	Language string
}

// Listener opens capture windows.
type Listener interface {
	// Listen starts capturing and returns the open window. The returned
	// error is a resource error (microphone unavailable, stream rejected);
	// the voice runner degrades it to a timeout outcome.
	Listen(ctx context.Context, cfg WindowConfig) (Window, error)
}

// Window is one open capture window.
//
// Callers must call Close when the window is no longer needed; failing to do
// so may leak goroutines or microphone handles inside the implementation.
type Window interface {
	// Results returns the stream of recognition events for this window. The
	// channel is closed when capture ends, whether by Close or by the
	// recognizer's own end-of-stream.
	Results() <-chan Result

	// Close ends capture early. It is idempotent.
	Close() error
}
