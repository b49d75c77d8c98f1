package models

import "time"

// AttemptOutcome classifies how a single execution attempt ended.
type AttemptOutcome string

const (
	// OutcomeSuccess indicates the attempt produced an answer.
	OutcomeSuccess AttemptOutcome = "success"
	// OutcomeToolFailure indicates a tool invocation errored.
	OutcomeToolFailure AttemptOutcome = "tool_failure"
	// OutcomeSafetyBlocked indicates the assurance gate denied an
	// action with no human review path.
	OutcomeSafetyBlocked AttemptOutcome = "safety_blocked"
	// OutcomeBudgetExceeded indicates a budget reservation was refused.
	OutcomeBudgetExceeded AttemptOutcome = "budget_exceeded"
	// OutcomeTimeout indicates the attempt ran out of time.
	OutcomeTimeout AttemptOutcome = "timeout"
	// OutcomeVerificationFailed indicates the verifier rejected the
	// attempt's answer.
	OutcomeVerificationFailed AttemptOutcome = "verification_failed"
	// OutcomeCanceled indicates the attempt was stopped by session
	// cancellation, not by its own failure.
	OutcomeCanceled AttemptOutcome = "canceled"
	// OutcomeHumanRejected indicates a reviewer declined a proposed
	// action during human review.
	OutcomeHumanRejected AttemptOutcome = "human_rejected"
)

// Valid returns true if the outcome is a known value.
func (o AttemptOutcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeToolFailure, OutcomeSafetyBlocked,
		OutcomeBudgetExceeded, OutcomeTimeout, OutcomeVerificationFailed,
		OutcomeCanceled, OutcomeHumanRejected:
		return true
	default:
		return false
	}
}

// Retryable returns true if the outcome permits another attempt,
// possibly at a higher tier. Safety blocks, budget exhaustion,
// cancellation, and human rejection end the step.
func (o AttemptOutcome) Retryable() bool {
	switch o {
	case OutcomeToolFailure, OutcomeTimeout, OutcomeVerificationFailed:
		return true
	default:
		return false
	}
}

// Attempt records one execution of a step by an executor at a tier.
type Attempt struct {
	// Seq is the 1-based attempt number within its step.
	Seq int `json:"seq"`
	// StepID is the step this attempt belongs to.
	StepID string `json:"step_id"`
	// Executor names the executor that ran the attempt.
	Executor string `json:"executor"`
	// Tier is the capability tier the attempt ran at.
	Tier Tier `json:"tier"`
	// Outcome classifies how the attempt ended.
	Outcome AttemptOutcome `json:"outcome"`
	// Answer is the produced output, present on success.
	Answer string `json:"answer,omitempty"`
	// Error holds the failure detail for non-success outcomes.
	Error string `json:"error,omitempty"`
	// TokensUsed is the committed token spend of this attempt.
	TokensUsed int64 `json:"tokens_used"`
	// ActionsUsed counts tool invocations made during the attempt.
	ActionsUsed int `json:"actions_used"`
	// Trace is the attempt's normalized working history.
	Trace Trace `json:"trace,omitempty"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the attempt finished.
	EndedAt time.Time `json:"ended_at"`
}

// Duration returns the attempt's elapsed execution time.
func (a *Attempt) Duration() time.Duration {
	if a.EndedAt.IsZero() || a.StartedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}
