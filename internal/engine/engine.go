// Package engine executes a playbook: it walks the page list, runs each
// page's action sequence strictly in order, and publishes lifecycle events
// on the session bus. The engine owns the playbook state machine and the
// cooperative pause gate; runners own the side effects of individual
// actions.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ponderpaw/readalong/internal/match"
	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/asr"
	"github.com/ponderpaw/readalong/pkg/assets"
	"github.com/ponderpaw/readalong/pkg/conversation"
	"github.com/ponderpaw/readalong/pkg/events"
	"github.com/ponderpaw/readalong/pkg/media"
)

// Config holds the engine's timing and voice policy. Zero values are valid;
// they disable the corresponding delay.
type Config struct {
	// ReadGap is the pause after each narration clip resolves.
	ReadGap time.Duration

	// PageSettle is the delay between the last page resolving and the
	// session finishing, so trailing audio and captions land before the
	// terminal event.
	PageSettle time.Duration

	// UnknownGrace is how long an unrecognized action type holds the
	// sequence before resolving.
	UnknownGrace time.Duration

	// FadeOut is the fade applied when playback is stopped early.
	FadeOut time.Duration

	// Voice is the session-wide voice-interaction policy.
	Voice VoicePolicy

	// Language is passed to the recognizer with every listen window.
	Language string
}

// Deps are the engine's external capabilities. Player, Listener, and
// Conversations may each be nil when the playbook never uses the
// corresponding action kind; a page that does reach a nil capability
// degrades to a resolved no-op.
type Deps struct {
	Player        media.Player
	Listener      asr.Listener
	Conversations conversation.Starter
	Assets        assets.Resolver
	Logger        *slog.Logger
	Metrics       *observe.Metrics
}

// Engine runs one playbook document for one session at a time.
//
// Play executes a page synchronously on the caller's goroutine; the control
// surface (Stop, Pause, Resume, SkipCurrentAction, PressTalk, ReleaseTalk)
// is safe to call concurrently from other goroutines and degrades to a
// logged no-op when it does not apply to the current state.
type Engine struct {
	doc     *playbook.Document
	bus     *events.Bus
	cfg     Config
	logger  *slog.Logger
	metrics *observe.Metrics

	seq     *sequencer
	pause   *pauseGate
	skipper *skipArm
	exec    *executionContext
	talk    chan talkSignal

	// mu guards the fields below plus the state machine. Page execution
	// itself runs outside mu; runMu serializes it.
	mu        sync.Mutex
	machine   *stateMachine
	runCancel context.CancelFunc
	sessionID string
	started   bool

	runMu sync.Mutex
}

// New assembles an engine for doc, publishing on bus. Nil optional deps are
// tolerated; nil Logger falls back to slog.Default and nil Metrics to a
// noop instance.
func New(doc *playbook.Document, bus *events.Bus, cfg Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.NewNoopMetrics()
	}

	e := &Engine{
		doc:     doc,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		pause:   newPauseGate(),
		skipper: &skipArm{},
		exec:    &executionContext{},
		talk:    make(chan talkSignal),
		machine: newStateMachine(logger),
	}

	e.seq = &sequencer{
		doc: doc,
		runners: map[playbook.Kind]runner{
			playbook.KindRead: &readRunner{
				player:   deps.Player,
				resolver: deps.Assets,
				bus:      bus,
				metrics:  metrics,
				readGap:  cfg.ReadGap,
				fadeOut:  cfg.FadeOut,
			},
			playbook.KindAgent: &agentRunner{
				conversations: deps.Conversations,
				knowledge:     doc.SharedKnowledge,
				metrics:       metrics,
			},
			playbook.KindVoice: &voiceRunner{
				listener: deps.Listener,
				scorer:   match.NewScorer(),
				policy:   cfg.Voice,
				language: cfg.Language,
				metrics:  metrics,
			},
			playbook.KindWait: waitRunner{},
		},
		unknown: unknownRunner{grace: cfg.UnknownGrace},
		bus:     bus,
		metrics: metrics,
		exec:    e.exec,
		pause:   e.pause,
		skipper: e.skipper,
		talk:    e.talk,
		logger:  logger,
	}
	return e
}

// Start begins a fresh session and synchronously plays the first page.
// Calling Start on a session that is already running is a logged no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		e.logger.Warn("start requested but a session is already running")
		return nil
	}
	e.started = true
	e.sessionID = uuid.NewString()
	e.exec.reset()
	e.machine.reset()
	sessionID := e.sessionID
	e.mu.Unlock()

	e.metrics.ActiveSessions.Add(ctx, 1)
	e.logger.Info("session started", "session_id", sessionID, "pages", e.doc.TotalPages())
	e.bus.Publish(events.NewBookStarted(sessionID))

	return e.Play(ctx, 0)
}

// Play loads the page at pageIndex and runs its action list to completion
// on the caller's goroutine. An in-flight page run is abandoned first, so
// host navigation always wins over whatever was playing. Playing the last
// page finishes the session after the settle delay.
func (e *Engine) Play(ctx context.Context, pageIndex int) error {
	page, ok := e.doc.PageAt(pageIndex)
	if !ok {
		return fmt.Errorf("engine: no page at index %d (total %d)", pageIndex, e.doc.TotalPages())
	}

	e.cancelInFlight()
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		e.logger.Warn("play requested before start, ignoring", "page", page.Number())
		return nil
	}
	if !e.machine.enter(StatePageReady) {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.runCancel = cancel
	e.mu.Unlock()
	defer e.clearCancel(cancel)

	e.exec.setPage(page.Index)
	e.bus.Publish(events.NewPagePlay(page.Number()))

	e.mu.Lock()
	entered := e.machine.enter(StateAction)
	e.mu.Unlock()
	if !entered {
		return nil
	}

	err := e.seq.runPage(runCtx, page)
	if err != nil {
		// A stopped or abandoned page resolves silently; the interrupting
		// path owns the follow-up events.
		e.logger.Debug("page run interrupted", "page", page.Number(), "reason", err)
		return nil
	}

	return e.finishPage(runCtx, page)
}

// finishPage publishes the completion pair for a resolved page and, on the
// last page, settles and finishes the session.
func (e *Engine) finishPage(ctx context.Context, page playbook.Page) error {
	e.mu.Lock()
	entered := e.machine.enter(StatePageReady)
	e.mu.Unlock()
	if !entered {
		return nil
	}

	e.metrics.PagesCompleted.Add(ctx, 1)
	e.bus.Publish(events.NewPageCompleted(page.Number()))
	e.bus.Publish(events.NewPageReady(page.Number(), e.doc.TotalPages()))

	if page.Index != e.doc.TotalPages()-1 {
		return nil
	}
	if err := sleep(ctx, e.cfg.PageSettle, nil); err != nil {
		return nil
	}
	e.finish(ctx)
	return nil
}

// finish emits the terminal event exactly once per session. It also marks
// the session as no longer running, so a finished engine restarts with a
// plain Start and a late Stop is a no-op instead of a second teardown.
func (e *Engine) finish(ctx context.Context) {
	if !e.exec.markCompleted() {
		return
	}
	e.mu.Lock()
	entered := e.machine.enter(StateFinish)
	if entered {
		e.started = false
	}
	e.mu.Unlock()
	if !entered {
		return
	}
	e.logger.Info("session finished", "session_id", e.SessionID())
	e.metrics.ActiveSessions.Add(ctx, -1)
	e.bus.Publish(events.NewBookEnded())
}

// Stop tears the session down: the in-flight page is canceled, the pause
// gate is released, and the machine returns to the start state. No terminal
// event is published; stop is an abort, not a completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasStarted := e.started
	e.started = false
	cancel := e.runCancel
	e.runCancel = nil
	e.mu.Unlock()

	if !wasStarted {
		e.logger.Warn("stop requested but no session is running")
		return
	}

	if cancel != nil {
		cancel()
	}
	e.pause.Resume()

	// Wait for the in-flight page run to unwind before resetting.
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.exec.reset()
	e.mu.Lock()
	e.machine.reset()
	e.mu.Unlock()

	e.metrics.ActiveSessions.Add(context.Background(), -1)
	e.logger.Info("session stopped")
}

// NextPage plays the page after the current one. Past the last page it is a
// logged no-op; the session ends through the last page settling, not
// through navigation.
func (e *Engine) NextPage(ctx context.Context) error {
	current, _ := e.exec.cursors()
	if current+1 >= e.doc.TotalPages() {
		e.logger.Warn("next page requested past the end", "current", current+1)
		return nil
	}
	return e.Play(ctx, current+1)
}

// PreviousPage replays the page before the current one, or logs a no-op on
// the first page.
func (e *Engine) PreviousPage(ctx context.Context) error {
	current, _ := e.exec.cursors()
	if current == 0 {
		e.logger.Warn("previous page requested on the first page")
		return nil
	}
	return e.Play(ctx, current-1)
}

// Pause suspends progression at the next checkpoint and pauses any active
// narration. Timers that are already running keep running.
func (e *Engine) Pause() {
	e.pause.Pause()
	e.logger.Info("session paused")
}

// Resume releases a paused session.
func (e *Engine) Resume() {
	e.pause.Resume()
	e.logger.Info("session resumed")
}

// TogglePause flips the pause state and returns the new state (true means
// paused).
func (e *Engine) TogglePause() bool {
	paused := e.pause.Toggle()
	e.logger.Info("pause toggled", "paused", paused)
	return paused
}

// Paused reports whether the session is currently paused.
func (e *Engine) Paused() bool { return e.pause.Paused() }

// SkipCurrentAction forces the in-flight action to resolve as if it had
// completed naturally. With nothing in flight it is a no-op.
func (e *Engine) SkipCurrentAction() {
	e.logger.Info("skip requested")
	e.skipper.fire()
}

// PressTalk signals a walkie-talkie press. Dropped unless a voice action is
// currently waiting on the talk channel.
func (e *Engine) PressTalk() { e.sendTalk(talkPress) }

// ReleaseTalk signals a walkie-talkie release.
func (e *Engine) ReleaseTalk() { e.sendTalk(talkRelease) }

func (e *Engine) sendTalk(sig talkSignal) {
	select {
	case e.talk <- sig:
	default:
		e.logger.Debug("talk signal dropped, no voice action listening", "signal", sig)
	}
}

// State returns the current playbook state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine.state()
}

// SessionID returns the identifier of the current (or most recent) session.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// Cursor returns the 1-based page number and 0-based action index the
// session is currently at.
func (e *Engine) Cursor() (pageNumber, actionIndex int) {
	page, action := e.exec.cursors()
	return page + 1, action
}

func (e *Engine) cancelInFlight() {
	e.mu.Lock()
	cancel := e.runCancel
	e.runCancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) clearCancel(cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	// Any cancel stored here is ours: newer Play calls are still blocked on
	// runMu when this runs.
	e.runCancel = nil
	e.mu.Unlock()
}
