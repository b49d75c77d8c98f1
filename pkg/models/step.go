package models

import "time"

// StepStatus represents the current state of a plan step.
type StepStatus string

const (
	// StepPending indicates the step is waiting on dependencies.
	StepPending StepStatus = "pending"
	// StepReady indicates all dependencies are done and the step can run.
	StepReady StepStatus = "ready"
	// StepRunning indicates an attempt is in flight for this step.
	StepRunning StepStatus = "running"
	// StepAwaitingVerification indicates the step produced an answer
	// that has not yet been adjudicated.
	StepAwaitingVerification StepStatus = "awaiting_verification"
	// StepEscalated indicates the step is being re-dispatched at a
	// higher capability tier.
	StepEscalated StepStatus = "escalated"
	// StepDone indicates the step completed and passed verification.
	StepDone StepStatus = "done"
	// StepFailed indicates the step terminally failed.
	StepFailed StepStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepReady, StepRunning, StepAwaitingVerification,
		StepEscalated, StepDone, StepFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is possible.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed
}

// stepTransitions lists the allowed step status transitions. Terminal
// statuses are absorbing.
var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:              {StepReady, StepFailed},
	StepReady:                {StepRunning, StepFailed},
	StepRunning:              {StepAwaitingVerification, StepEscalated, StepFailed},
	StepAwaitingVerification: {StepDone, StepRunning, StepEscalated, StepFailed},
	StepEscalated:            {StepRunning, StepFailed},
	StepDone:                 {},
	StepFailed:               {},
}

// CanTransitionTo returns true if a step may move from s to next.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PlanStep is an atomic unit of work in a session's plan.
type PlanStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`
	// Description states what the step must accomplish.
	Description string `json:"description"`
	// Capability is the capability tag an executor must advertise to
	// run this step. Never empty on a valid step.
	Capability string `json:"capability"`
	// DependsOn lists step IDs that must be done before this step.
	// The full set of dependencies across a plan must form a DAG.
	DependsOn []string `json:"depends_on,omitempty"`
	// Tier is the capability tier currently assigned to this step.
	// It only moves up the ladder (escalation), never down.
	Tier Tier `json:"tier"`
	// Status is the current state of the step.
	Status StepStatus `json:"status"`
	// AcceptanceCriteria describes what a passing output looks like.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	// HighSensitivity marks steps whose outcome is likely to
	// invalidate the rest of the plan; the scheduler orders these
	// before equal-priority peers.
	HighSensitivity bool `json:"high_sensitivity,omitempty"`
	// Attempts is the append-only history of executions of this step.
	Attempts []*Attempt `json:"attempts,omitempty"`
	// AssignedTo names the executor currently holding this step.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Ordinal is the step's creation position within its plan, used
	// for FIFO scheduling ties.
	Ordinal int `json:"ordinal"`
	// CreatedAt is when the step was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the step reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// FinalAnswer is the verified output of a done step.
	FinalAnswer string `json:"final_answer,omitempty"`
	// BlockedReason explains why a step failed without running, for
	// example "dependency_failed:<id>".
	BlockedReason string `json:"blocked_reason,omitempty"`
	// Error contains the last error message if the step failed.
	Error string `json:"error,omitempty"`
}

// LatestAttempt returns the most recent attempt, or nil if none.
func (p *PlanStep) LatestAttempt() *Attempt {
	if len(p.Attempts) == 0 {
		return nil
	}
	return p.Attempts[len(p.Attempts)-1]
}

// NextAttemptSeq returns the sequence number the next attempt should
// carry. Attempt sequence numbers start at 1.
func (p *PlanStep) NextAttemptSeq() int {
	return len(p.Attempts) + 1
}

// AttemptsAtTier counts recorded attempts at the given tier.
func (p *PlanStep) AttemptsAtTier(t Tier) int {
	n := 0
	for _, a := range p.Attempts {
		if a.Tier == t {
			n++
		}
	}
	return n
}
