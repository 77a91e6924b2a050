// Package mock provides test doubles for the media package interfaces.
//
// Player simulates timed playback: each Play call returns a Playback whose
// Done channel closes after a configurable simulated duration. Pause holds
// the simulated clock, matching the pause-holds-not-cancels contract of the
// real capability.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ponderpaw/readalong/pkg/media"
)

// PlayCall records a single invocation of Player.Play.
type PlayCall struct {
	// Req is the request passed to Play.
	Req media.Request
}

// Player is a mock implementation of media.Player.
type Player struct {
	mu sync.Mutex

	// Duration is the simulated playback length for every request.
	// Zero means playback completes immediately.
	Duration time.Duration

	// DurationFor, when non-nil, overrides Duration per request.
	DurationFor func(req media.Request) time.Duration

	// PlayErr, if non-nil, is returned from Play to simulate a resource
	// failure.
	PlayErr error

	// PlayCalls records every call to Play.
	PlayCalls []PlayCall
}

// Play records the call and returns a timed Playback.
func (p *Player) Play(_ context.Context, req media.Request) (media.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{Req: req})
	if p.PlayErr != nil {
		return nil, p.PlayErr
	}

	d := p.Duration
	if p.DurationFor != nil {
		d = p.DurationFor(req)
	}
	return NewPlayback(d), nil
}

// Calls returns a snapshot of recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}

// Playback is a simulated playback handle driven by wall-clock timers.
type Playback struct {
	mu        sync.Mutex
	duration  time.Duration
	elapsed   time.Duration
	startedAt time.Time
	paused    bool
	resolved  bool
	timer     *time.Timer
	done      chan struct{}

	// StopCalls counts Stop invocations; FadeUsed records the last fade
	// duration passed to Stop.
	StopCalls int
	FadeUsed  time.Duration
}

// NewPlayback returns a running simulated playback of length d.
func NewPlayback(d time.Duration) *Playback {
	pb := &Playback{
		duration:  d,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	pb.timer = time.AfterFunc(d, pb.finish)
	return pb
}

func (pb *Playback) finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.resolve()
}

// resolve closes done once. Callers must hold pb.mu.
func (pb *Playback) resolve() {
	if pb.resolved {
		return
	}
	pb.resolved = true
	if !pb.paused {
		pb.elapsed += time.Since(pb.startedAt)
	}
	if pb.elapsed > pb.duration {
		pb.elapsed = pb.duration
	}
	close(pb.done)
}

// Done implements media.Playback.
func (pb *Playback) Done() <-chan struct{} { return pb.done }

// Err implements media.Playback. The mock never fails mid-playback.
func (pb *Playback) Err() error { return nil }

// Pause holds the simulated clock.
func (pb *Playback) Pause() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.paused || pb.resolved {
		return
	}
	pb.paused = true
	pb.elapsed += time.Since(pb.startedAt)
	pb.timer.Stop()
}

// Resume continues from the held position.
func (pb *Playback) Resume() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.paused || pb.resolved {
		return
	}
	pb.paused = false
	pb.startedAt = time.Now()
	pb.timer = time.AfterFunc(pb.duration-pb.elapsed, pb.finish)
}

// Position reports simulated elapsed playback time.
func (pb *Playback) Position() time.Duration {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.paused || pb.resolved {
		return pb.elapsed
	}
	pos := pb.elapsed + time.Since(pb.startedAt)
	if pos > pb.duration {
		return pb.duration
	}
	return pos
}

// Stop resolves the playback early and records the fade used.
func (pb *Playback) Stop(fade time.Duration) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.StopCalls++
	pb.FadeUsed = fade
	pb.timer.Stop()
	pb.resolve()
}
