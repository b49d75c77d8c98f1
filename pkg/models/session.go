package models

import "time"

// SessionState represents the lifecycle state of an orchestration
// session.
type SessionState string

const (
	// SessionPlanning indicates the goal is being decomposed into steps.
	SessionPlanning SessionState = "planning"
	// SessionExecuting indicates steps are being dispatched and run.
	SessionExecuting SessionState = "executing"
	// SessionVerifying indicates completed work is being adjudicated.
	SessionVerifying SessionState = "verifying"
	// SessionEscalated indicates at least one step is being retried at
	// a higher tier.
	SessionEscalated SessionState = "escalated"
	// SessionHumanPaused indicates the session is waiting on a human
	// review decision. The budget clock is stopped while paused.
	SessionHumanPaused SessionState = "human_paused"
	// SessionCompleted indicates every step finished and verified.
	SessionCompleted SessionState = "completed"
	// SessionAborted indicates the session stopped before completion.
	SessionAborted SessionState = "aborted"
)

// Valid returns true if the state is a known value.
func (s SessionState) Valid() bool {
	switch s {
	case SessionPlanning, SessionExecuting, SessionVerifying,
		SessionEscalated, SessionHumanPaused, SessionCompleted, SessionAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if the session can never leave this state.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// sessionTransitions lists the allowed session state transitions.
// Completed and Aborted are absorbing.
var sessionTransitions = map[SessionState][]SessionState{
	SessionPlanning:    {SessionExecuting, SessionAborted},
	SessionExecuting:   {SessionVerifying, SessionEscalated, SessionHumanPaused, SessionCompleted, SessionAborted},
	SessionVerifying:   {SessionExecuting, SessionEscalated, SessionHumanPaused, SessionCompleted, SessionAborted},
	SessionEscalated:   {SessionExecuting, SessionHumanPaused, SessionCompleted, SessionAborted},
	SessionHumanPaused: {SessionExecuting, SessionVerifying, SessionAborted},
	SessionCompleted:   {},
	SessionAborted:     {},
}

// CanTransitionTo returns true if a session may move from s to next.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Session is the root record for one orchestrated goal.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Goal is the original problem statement the session works on.
	Goal string `json:"goal"`
	// State is the session's current lifecycle state.
	State SessionState `json:"state"`
	// Steps holds the plan in creation order.
	Steps []*PlanStep `json:"steps,omitempty"`
	// TokenBudget is the total token allowance for the session.
	// Zero means unlimited.
	TokenBudget int64 `json:"token_budget,omitempty"`
	// WallClockBudget is the total elapsed-time allowance. The clock
	// stops while the session is paused for human review. Zero means
	// unlimited.
	WallClockBudget time.Duration `json:"wall_clock_budget,omitempty"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the session reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// AbortReason explains why an aborted session stopped.
	AbortReason string `json:"abort_reason,omitempty"`
}

// StepByID returns the step with the given ID, or nil if not present.
func (s *Session) StepByID(id string) *PlanStep {
	for _, step := range s.Steps {
		if step.ID == id {
			return step
		}
	}
	return nil
}

// AllStepsTerminal returns true once every step is done or failed.
func (s *Session) AllStepsTerminal() bool {
	for _, step := range s.Steps {
		if !step.Status.Terminal() {
			return false
		}
	}
	return true
}

// FailedSteps returns the steps that terminally failed, in plan order.
func (s *Session) FailedSteps() []*PlanStep {
	var out []*PlanStep
	for _, step := range s.Steps {
		if step.Status == StepFailed {
			out = append(out, step)
		}
	}
	return out
}
