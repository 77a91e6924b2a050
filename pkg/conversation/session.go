// Package conversation defines the AI conversation capability used by agent
// actions.
//
// The engine starts a session, lets it run until the action's duration bound
// or an explicit skip, and then tears it down. The conversation transport —
// what model speaks, over what protocol — is entirely the implementation's
// concern; the engine guarantees only that End is called exactly once for
// every session it started.
package conversation

import "context"

// Params configures a new conversation turn.
type Params struct {
	// InitialPrompt is the system prompt establishing the agent's role for
	// this turn.
	InitialPrompt string

	// OpeningLine is spoken by the agent as soon as the session starts.
	OpeningLine string

	// VoiceID selects the agent voice at the provider.
	VoiceID string

	// Knowledge is the playbook's shared knowledge, passed through verbatim.
	Knowledge map[string]any
}

// Starter opens conversation sessions.
type Starter interface {
	// Start opens a session with the given parameters. A start failure is a
	// resource error; the agent runner degrades it to a completed no-op.
	Start(ctx context.Context, params Params) (Session, error)
}

// Session is one live conversation turn.
type Session interface {
	// End tears the session down. Implementations may assume End is called
	// at most once; the engine serializes and deduplicates teardown.
	End() error
}
