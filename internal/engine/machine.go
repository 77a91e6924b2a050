package engine

import "log/slog"

// State is a playbook state-machine state.
type State string

const (
	// StateStart is the initial (and post-stop) state.
	StateStart State = "start"

	// StatePageReady means a page is loaded and idle: ready for its action
	// list to run, for host navigation, or for the terminal transition.
	StatePageReady State = "page_ready"

	// StateAction means the page's action list is executing.
	StateAction State = "action"

	// StateFinish is the terminal state after the last page settles.
	StateFinish State = "finish"
)

// validTransitions lists, per state, the states it may enter. StateStart is
// additionally reachable from anywhere via reset (the stop path), which
// bypasses the table on purpose.
var validTransitions = map[State][]State{
	StateStart:     {StatePageReady},
	StatePageReady: {StatePageReady, StateAction, StateFinish},
	StateAction:    {StatePageReady, StateAction},
	StateFinish:    {},
}

// stateMachine tracks the current playbook state and guards transitions.
// An invalid transition request is a no-op with a warning, never a crash:
// callers check the return value when the follow-up work must not happen.
//
// stateMachine is not self-locking; the engine serializes access.
type stateMachine struct {
	current State
	logger  *slog.Logger
}

func newStateMachine(logger *slog.Logger) *stateMachine {
	return &stateMachine{current: StateStart, logger: logger}
}

// enter transitions to next if the transition is valid and reports whether
// it happened.
func (m *stateMachine) enter(next State) bool {
	for _, s := range validTransitions[m.current] {
		if s == next {
			m.logger.Debug("state transition", "from", m.current, "to", next)
			m.current = next
			return true
		}
	}
	m.logger.Warn("invalid state transition requested, ignoring",
		"from", m.current,
		"to", next,
	)
	return false
}

// reset forces the machine back to StateStart. Used only by the stop path.
func (m *stateMachine) reset() {
	if m.current != StateStart {
		m.logger.Debug("state reset", "from", m.current)
	}
	m.current = StateStart
}

// state returns the current state.
func (m *stateMachine) state() State {
	return m.current
}
