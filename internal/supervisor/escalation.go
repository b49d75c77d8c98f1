package supervisor

import (
	"errors"

	"github.com/stewardlab/steward/pkg/models"
)

// ErrEscalationExhausted indicates a step failed at the top of the
// tier ladder with no retries left.
var ErrEscalationExhausted = errors.New("escalation ladder exhausted")

// DefaultSameTierRetries is how many extra attempts a step gets at its
// current tier before the next failure moves it one tier up.
const DefaultSameTierRetries = 1

// escalationAction is the policy's answer to one failed attempt.
type escalationAction int

const (
	// escalationStop ends the step: the outcome is not retryable.
	escalationStop escalationAction = iota
	// escalationRetry re-dispatches the step at its current tier.
	escalationRetry
	// escalationRaise moves the step exactly one tier up.
	escalationRaise
	// escalationExhausted ends the step: no tier left to try.
	escalationExhausted
)

func (a escalationAction) String() string {
	switch a {
	case escalationStop:
		return "stop"
	case escalationRetry:
		return "retry"
	case escalationRaise:
		return "raise"
	case escalationExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// escalationPolicy decides what happens to a step after a failed
// attempt. Only tool failures, timeouts and verification failures are
// retryable; everything else ends the step. A retryable failure gets
// sameTierRetries extra attempts at the current tier, then exactly one
// tier up, with the retry count starting over at the new tier. The
// ladder never skips a tier and never moves down.
type escalationPolicy struct {
	sameTierRetries int
}

// decide maps one failed attempt to the step's next move. The step's
// attempt history, including the attempt that just failed, must
// already be on the step. An abstained verification failure is a
// confidence problem rather than a capability problem, so it retries
// at the current tier and never raises.
func (p escalationPolicy) decide(step *models.PlanStep, outcome models.AttemptOutcome, abstained bool) escalationAction {
	if !outcome.Retryable() {
		return escalationStop
	}
	if step.AttemptsAtTier(step.Tier) <= p.sameTierRetries {
		return escalationRetry
	}
	if abstained || step.Tier.AtCeiling() {
		return escalationExhausted
	}
	return escalationRaise
}
