// Package mock provides test doubles for the conversation package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/ponderpaw/readalong/pkg/conversation"
)

// StartCall records a single invocation of Starter.Start.
type StartCall struct {
	// Params holds the parameters passed to Start.
	Params conversation.Params
}

// Starter is a mock implementation of conversation.Starter.
type Starter struct {
	mu sync.Mutex

	// Session is returned from Start. If nil, Start returns a fresh Session.
	Session *Session

	// StartErr, if non-nil, is returned from Start.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall
}

// Start records the call and returns Session (or a fresh one), StartErr.
func (s *Starter) Start(_ context.Context, params conversation.Params) (conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls = append(s.StartCalls, StartCall{Params: params})
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.Session != nil {
		return s.Session, nil
	}
	return &Session{}, nil
}

// Calls returns a snapshot of recorded Start calls.
func (s *Starter) Calls() []StartCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StartCall, len(s.StartCalls))
	copy(out, s.StartCalls)
	return out
}

// Session is a mock implementation of conversation.Session.
type Session struct {
	mu sync.Mutex

	// EndErr, if non-nil, is returned from End.
	EndErr error

	// EndCalls counts End invocations. The engine contract is exactly one.
	EndCalls int
}

// End records the call and returns EndErr.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndCalls++
	return s.EndErr
}

// Ended reports how many times End was called.
func (s *Session) Ended() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EndCalls
}
