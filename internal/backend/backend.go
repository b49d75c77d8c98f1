// Package backend abstracts the reasoning model serving planner, agent and
// verifier calls. Implementations return raw completion text; consumers
// parse it.
package backend

import (
	"context"
	"sync"

	"github.com/stewardlab/steward/pkg/models"
)

// Request is one reasoning call.
type Request struct {
	// System is the system prompt. Empty omits it.
	System string
	// Prompt is the user-turn content.
	Prompt string
	// Tier selects the capability class that serves the call.
	Tier models.Tier
	// MaxTokens caps the response length. Zero uses the backend default.
	MaxTokens int64
}

// Completion is a backend response plus the usage needed for ledger commits.
type Completion struct {
	// Text is the raw response text.
	Text string
	// TokensIn and TokensOut are the measured usage of the call.
	TokensIn  int64
	TokensOut int64
	// Model identifies what actually served the call.
	Model string
}

// Tokens returns the combined usage of the call.
func (c *Completion) Tokens() int64 {
	return c.TokensIn + c.TokensOut
}

// Backend produces completions for reasoning requests. Implementations must
// be safe for concurrent use.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Func adapts a function to the Backend interface (mainly for testing).
type Func func(ctx context.Context, req Request) (*Completion, error)

// Complete implements Backend.
func (f Func) Complete(ctx context.Context, req Request) (*Completion, error) {
	return f(ctx, req)
}

// TokenTracker accumulates usage across calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates an empty tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from one call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the accumulated input and output tokens.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns how many calls were recorded.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears the tracker.
func (t *TokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok = 0
	t.outputTok = 0
	t.calls = 0
}

// Cost estimates the accumulated cost in USD. Pricing is approximate
// mid-tier rates and not broken out per model.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	inputCost := float64(t.inputTok) / 1_000_000 * 3.0
	outputCost := float64(t.outputTok) / 1_000_000 * 15.0
	return inputCost + outputCost
}
