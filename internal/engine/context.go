package engine

import (
	"context"
	"sync"
)

// pauseGate is the cooperative suspension point shared by the sequencer and
// every in-flight runner. Pausing closes nothing and cancels nothing: gated
// code simply blocks in Wait until resume. The gate is the only state shared
// for read access across runners; writes happen only through the engine's
// pause/resume entry points.
type pauseGate struct {
	mu      sync.Mutex
	paused  bool
	resumed chan struct{} // closed when not paused; replaced on pause
}

func newPauseGate() *pauseGate {
	resumed := make(chan struct{})
	close(resumed)
	return &pauseGate{resumed: resumed}
}

// Pause holds future Wait calls. Idempotent.
func (g *pauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resumed = make(chan struct{})
}

// Resume releases all goroutines blocked in Wait. Idempotent.
func (g *pauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resumed)
}

// Toggle flips the pause state and returns the new state (true = paused).
func (g *pauseGate) Toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paused = !g.paused
	if g.paused {
		g.resumed = make(chan struct{})
	} else {
		close(g.resumed)
	}
	return g.paused
}

// Paused reports the current pause state.
func (g *pauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused. It returns ctx.Err() if ctx is done
// first, nil otherwise. Wait re-checks after every release so a
// pause-resume-pause flicker cannot slip a waiter through paused.
func (g *pauseGate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		ch := g.resumed
		g.mu.Unlock()

		select {
		case <-ch:
			g.mu.Lock()
			stillPaused := g.paused
			g.mu.Unlock()
			if !stillPaused {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// executionContext carries the mutable cursors of one reading session. It is
// created by Start, discarded by Stop, and owned exclusively by the engine;
// runners receive values derived from it, never the struct itself.
type executionContext struct {
	mu sync.Mutex

	currentPageIndex   int
	currentActionIndex int

	// hasCompletedOnce guards against duplicate terminal events.
	hasCompletedOnce bool
}

func (ec *executionContext) setPage(index int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.currentPageIndex = index
	ec.currentActionIndex = 0
}

func (ec *executionContext) setActionIndex(i int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.currentActionIndex = i
}

func (ec *executionContext) cursors() (page, action int) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.currentPageIndex, ec.currentActionIndex
}

// markCompleted flips hasCompletedOnce and reports whether this call was the
// first to do so.
func (ec *executionContext) markCompleted() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.hasCompletedOnce {
		return false
	}
	ec.hasCompletedOnce = true
	return true
}

func (ec *executionContext) reset() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.currentPageIndex = 0
	ec.currentActionIndex = 0
	ec.hasCompletedOnce = false
}
