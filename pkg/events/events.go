// Package events defines the host-facing event contract of the read-along
// engine and the ordered [Bus] that delivers it.
//
// Event kinds, grouped by namespace:
//
//   - book.* — session boundaries (book.started, book.ended)
//   - page.* — page lifecycle (page.play, page.ready, page.completed)
//   - action.* — per-action lifecycle (action.started, action.completed)
//   - caption.* — caption display updates (caption.updated)
//
// Events for a given page are published in the order they are generated; the
// bus never reorders or coalesces.
package events

import "time"

// Kind identifies an event type. Kind strings are stable and suitable for
// wire serialization by host bridges.
type Kind string

const (
	KindBookStarted     Kind = "book.started"
	KindBookEnded       Kind = "book.ended"
	KindPagePlay        Kind = "page.play"
	KindPageReady       Kind = "page.ready"
	KindPageCompleted   Kind = "page.completed"
	KindActionStarted   Kind = "action.started"
	KindActionCompleted Kind = "action.completed"
	KindCaptionUpdated  Kind = "caption.updated"
)

// Event is implemented by every payload published on the [Bus].
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the fields shared by all events. Embed it and construct with
// [NewBase].
type Base struct {
	kind      Kind
	timestamp time.Time
}

// NewBase returns a Base stamped with the current time.
func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind           { return b.kind }
func (b Base) Timestamp() time.Time { return b.timestamp }

// BookStarted signals that the reading session has begun.
type BookStarted struct {
	Base

	// SessionID identifies this reading session in logs and telemetry.
	SessionID string
}

// NewBookStarted returns a BookStarted event.
func NewBookStarted(sessionID string) BookStarted {
	return BookStarted{Base: NewBase(KindBookStarted), SessionID: sessionID}
}

// BookEnded is the terminal event of a session, emitted exactly once.
type BookEnded struct {
	Base
}

// NewBookEnded returns a BookEnded event.
func NewBookEnded() BookEnded {
	return BookEnded{Base: NewBase(KindBookEnded)}
}

// PagePlay signals that a page transition has begun.
type PagePlay struct {
	Base

	// PageNumber is the 1-based number of the page being entered.
	PageNumber int
}

// NewPagePlay returns a PagePlay event.
func NewPagePlay(pageNumber int) PagePlay {
	return PagePlay{Base: NewBase(KindPagePlay), PageNumber: pageNumber}
}

// PageReady signals that a page is idle and ready for the next action or for
// host navigation.
type PageReady struct {
	Base

	// Current is the 1-based number of the page that just became ready.
	Current int

	// Total is the page count of the loaded document.
	Total int
}

// NewPageReady returns a PageReady event.
func NewPageReady(current, total int) PageReady {
	return PageReady{Base: NewBase(KindPageReady), Current: current, Total: total}
}

// PageCompleted signals that a page's action list fully resolved.
type PageCompleted struct {
	Base

	// PageNumber is the 1-based number of the completed page.
	PageNumber int
}

// NewPageCompleted returns a PageCompleted event.
func NewPageCompleted(pageNumber int) PageCompleted {
	return PageCompleted{Base: NewBase(KindPageCompleted), PageNumber: pageNumber}
}

// ActionStarted signals that the sequencer dispatched an action.
type ActionStarted struct {
	Base

	// ActionKey is the action's key in the document action table.
	ActionKey string

	// Index is the zero-based position within the page's action list.
	Index int
}

// NewActionStarted returns an ActionStarted event.
func NewActionStarted(actionKey string, index int) ActionStarted {
	return ActionStarted{Base: NewBase(KindActionStarted), ActionKey: actionKey, Index: index}
}

// ActionCompleted signals that an action's runner resolved.
type ActionCompleted struct {
	Base

	// ActionKey is the action's key in the document action table.
	ActionKey string

	// Index is the zero-based position within the page's action list.
	Index int
}

// NewActionCompleted returns an ActionCompleted event.
func NewActionCompleted(actionKey string, index int) ActionCompleted {
	return ActionCompleted{Base: NewBase(KindActionCompleted), ActionKey: actionKey, Index: index}
}

// CaptionUpdated carries the caption text the host should display. An empty
// Text clears the caption area.
type CaptionUpdated struct {
	Base

	// Text is the caption snapshot. For timing-tracked reads this grows as
	// playback progresses; otherwise it is the full narration text.
	Text string

	// CharTimings, when non-nil, carries the per-character cue offsets so
	// hosts that render their own highlighting can pace it themselves.
	CharTimings []time.Duration
}

// NewCaptionUpdated returns a CaptionUpdated event.
func NewCaptionUpdated(text string, charTimings []time.Duration) CaptionUpdated {
	return CaptionUpdated{Base: NewBase(KindCaptionUpdated), Text: text, CharTimings: charTimings}
}
