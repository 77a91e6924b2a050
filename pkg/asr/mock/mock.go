// Package mock provides test doubles for the asr package interfaces.
//
// Use Listener to verify window lifecycles and feed controlled recognition
// results:
//
//	win := mock.NewWindow()
//	lis := &mock.Listener{Window: win}
//	// ... start the voice action, then:
//	win.Emit(asr.Result{Text: "red", Confidence: 0.93})
package mock

import (
	"context"
	"sync"

	"github.com/ponderpaw/readalong/pkg/asr"
)

// ListenCall records a single invocation of Listener.Listen.
type ListenCall struct {
	// Cfg is the WindowConfig passed to Listen.
	Cfg asr.WindowConfig
}

// Listener is a mock implementation of asr.Listener.
type Listener struct {
	mu sync.Mutex

	// Window is returned from Listen. If nil, Listen returns a fresh
	// NewWindow() per call.
	Window *Window

	// Windows receives every window handed out, in order, when Window is
	// nil. Useful for feeding results across retry cycles.
	Windows []*Window

	// OnListen, when non-nil, is invoked with each window handed out, after
	// it is recorded. Tests use it to script results for every retry cycle.
	OnListen func(*Window)

	// ListenErr, if non-nil, is returned from Listen.
	ListenErr error

	// ListenCalls records every call to Listen.
	ListenCalls []ListenCall
}

// Listen records the call and returns the configured or a fresh window.
func (l *Listener) Listen(_ context.Context, cfg asr.WindowConfig) (asr.Window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ListenCalls = append(l.ListenCalls, ListenCall{Cfg: cfg})
	if l.ListenErr != nil {
		return nil, l.ListenErr
	}
	if l.Window != nil {
		if l.OnListen != nil {
			l.OnListen(l.Window)
		}
		return l.Window, nil
	}
	w := NewWindow()
	l.Windows = append(l.Windows, w)
	if l.OnListen != nil {
		l.OnListen(w)
	}
	return w, nil
}

// CallCount returns the number of Listen invocations so far.
func (l *Listener) CallCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ListenCalls)
}

// Window is a mock implementation of asr.Window fed by the test.
type Window struct {
	mu      sync.Mutex
	results chan asr.Result
	closed  bool

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// NewWindow returns an open window with a buffered result channel.
func NewWindow() *Window {
	return &Window{results: make(chan asr.Result, 16)}
}

// Emit feeds a recognition result into the window. Emitting after Close is a
// no-op, mirroring a real recognizer that stops producing once capture ends.
func (w *Window) Emit(r asr.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.results <- r
}

// Results implements asr.Window.
func (w *Window) Results() <-chan asr.Result { return w.results }

// Close implements asr.Window. Idempotent.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.CloseCalls++
	if !w.closed {
		w.closed = true
		close(w.results)
	}
	return nil
}
