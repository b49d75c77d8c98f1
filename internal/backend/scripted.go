package backend

import (
	"context"
	"fmt"
	"sync"
)

// Scripted replays a fixed sequence of completions in order (mainly for
// testing). It records every request so tests can assert on prompts and
// tiers, and fails once the script is exhausted.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	requests  []Request
	calls     int

	// TokensIn and TokensOut are reported on every completion so budget
	// behavior stays deterministic. Set them before first use.
	TokensIn  int64
	TokensOut int64
}

// NewScripted creates a scripted backend that returns the given responses
// in order.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{
		responses: responses,
		TokensIn:  100,
		TokensOut: 50,
	}
}

// Complete implements Backend.
func (s *Scripted) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("script exhausted after %d calls", len(s.responses))
	}
	text := s.responses[s.calls]
	s.calls++

	return &Completion{
		Text:      text,
		TokensIn:  s.TokensIn,
		TokensOut: s.TokensOut,
		Model:     "scripted",
	}, nil
}

// Calls returns how many completions were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

var _ Backend = (*Scripted)(nil)
