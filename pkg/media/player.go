// Package media defines the opaque media-player capability the engine uses
// for narration playback.
//
// A Player turns a playback request (an audio file or text to synthesize)
// into a [Playback] handle. The engine only ever holds one active Playback
// per read runner; starting a new one implies the previous handle was
// stopped. Platform audio APIs live entirely behind this interface — the
// engine never touches them directly.
//
// Implementations must be safe for concurrent use. The mock subpackage
// provides a timed simulation suitable for tests and headless runs.
package media

import (
	"context"
	"time"
)

// Request describes one unit of narration playback.
type Request struct {
	// FilePath is the resolved path of a backing audio file. When set, Text
	// is caption-only.
	FilePath string

	// Text is the narration text. When FilePath is empty the player
	// synthesizes speech from it.
	Text string
}

// Player starts playback units.
type Player interface {
	// Play begins playback of req and returns a handle for it. Play returns
	// an error only when playback could not start at all (missing file,
	// synth failure); the caller degrades such failures to a completed
	// no-op, so implementations should not retry internally.
	Play(ctx context.Context, req Request) (Playback, error)
}

// Playback is the handle for one in-flight playback unit.
//
// The handle resolves exactly once: Done is closed on natural completion and
// on Stop, whichever comes first. All methods are idempotent and safe to
// call after resolution.
type Playback interface {
	// Done is closed when playback has finished or been stopped.
	Done() <-chan struct{}

	// Err reports the playback failure, if any, once Done is closed.
	Err() error

	// Pause holds playback at the current position without releasing the
	// underlying resource.
	Pause()

	// Resume continues a paused playback from the held position.
	Resume()

	// Position reports elapsed playback time. It does not advance while
	// paused.
	Position() time.Duration

	// Stop ends playback early, fading out over fade when the platform
	// supports it (an abrupt cut is an acceptable fallback). The player
	// handle is released in either case.
	Stop(fade time.Duration)
}
