package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ponderpaw/readalong/internal/playbook"
)

// runner owns the lifecycle of one in-flight action's side effect and its
// single resolution.
//
// The contract every runner honors:
//
//   - run returns exactly once per call, when the action resolves (natural
//     completion, skip, timeout, or degraded resource failure).
//   - A resource failure resolves as completed (logged, counted), never as
//     an error: a broken asset must not stall the book.
//   - ctx cancellation (stop, page abandonment) tears down any external
//     resource and returns ctx.Err(); teardown is idempotent.
//   - rc.skip firing resolves the action immediately, as if it had
//     completed naturally.
type runner interface {
	run(ctx context.Context, spec playbook.ActionSpec, rc runContext) error
}

// runContext carries the per-action collaboration points a runner needs.
// It is passed explicitly instead of letting runners hold a reference back
// to the engine.
type runContext struct {
	// pause is the session's cooperative suspension gate.
	pause *pauseGate

	// skip fires (closes) when the host requests the current action resolve
	// immediately.
	skip <-chan struct{}

	// talk delivers walkie-talkie press/release signals.
	talk <-chan talkSignal

	// runAction dispatches a nested action by key — used by voice branches
	// to run their configured success/failure actions before resolving.
	runAction func(ctx context.Context, key string) error

	logger *slog.Logger
}

// talkSignal is a walkie-talkie control signal from the host.
type talkSignal int

const (
	talkPress talkSignal = iota
	talkRelease
)

// skipArm hands out one skip channel per action and fires the active one on
// request. Firing when nothing is armed is a no-op; firing twice is a no-op.
type skipArm struct {
	mu    sync.Mutex
	ch    chan struct{}
	fired bool
}

// arm installs a fresh skip channel for the next action and returns it.
func (s *skipArm) arm() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan struct{})
	s.fired = false
	return s.ch
}

// fire resolves the currently armed action, if any.
func (s *skipArm) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil || s.fired {
		return
	}
	s.fired = true
	close(s.ch)
}

// disarm drops the active channel so a late fire cannot leak into the next
// action.
func (s *skipArm) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = nil
	s.fired = false
}

// sleep waits for d, resolving early when skip fires (returns nil, treated
// as completion) or ctx is done (returns ctx.Err()). Wall-clock based: the
// pause gate holds sequencer progression, not running timers.
func sleep(ctx context.Context, d time.Duration, skip <-chan struct{}) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-skip:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
