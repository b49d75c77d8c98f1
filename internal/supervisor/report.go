package supervisor

import (
	"time"

	"github.com/stewardlab/steward/internal/ledger"
	"github.com/stewardlab/steward/pkg/models"
)

// Report is the terminal account of one session. Every step appears,
// failed ones included.
type Report struct {
	// SessionID identifies the session.
	SessionID string
	// Goal is the problem statement the session worked on.
	Goal string
	// State is the session's terminal state.
	State models.SessionState
	// Reason explains an aborted session.
	Reason string
	// Steps enumerates every plan step in plan order.
	Steps []StepReport
	// StepsDone counts steps that finished and passed verification.
	StepsDone int
	// StepsFailed counts steps that terminally failed.
	StepsFailed int
	// TokensUsed is the session's committed token spend.
	TokensUsed int64
	// ActionsUsed counts tool invocations across the session.
	ActionsUsed int64
	// Elapsed is running wall time, excluding paused intervals.
	Elapsed time.Duration
	// Followups are operator messages queued during the run.
	Followups []string
}

// StepReport summarizes one step's history for the terminal report.
type StepReport struct {
	// ID identifies the step.
	ID string
	// Description states what the step was meant to accomplish.
	Description string
	// Capability is the step's capability tag.
	Capability string
	// Status is the step's final status.
	Status models.StepStatus
	// Outcome classifies the last attempt, empty if the step never ran.
	Outcome models.AttemptOutcome
	// Tiers is the tier of each attempt in order.
	Tiers []models.Tier
	// Attempts counts executions of the step.
	Attempts int
	// Answer is the verified output of a done step.
	Answer string
	// Error is the failure detail of a failed step.
	Error string
	// BlockedReason explains a step that failed without running.
	BlockedReason string
	// LastTrace is the tail of the last attempt's working history.
	LastTrace string
}

// buildReport assembles the terminal report from the session record
// and ledger totals.
func buildReport(session *models.Session, led *ledger.Ledger, followups []string) *Report {
	r := &Report{
		SessionID: session.ID,
		Goal:      session.Goal,
		State:     session.State,
		Reason:    session.AbortReason,
		Followups: followups,
	}
	if led != nil {
		r.TokensUsed = led.TokensUsed()
		r.ActionsUsed = led.ActionsUsed()
		r.Elapsed = led.Elapsed()
	}

	for _, step := range session.Steps {
		sr := StepReport{
			ID:            step.ID,
			Description:   step.Description,
			Capability:    step.Capability,
			Status:        step.Status,
			Attempts:      len(step.Attempts),
			Answer:        step.FinalAnswer,
			Error:         step.Error,
			BlockedReason: step.BlockedReason,
		}
		for _, a := range step.Attempts {
			sr.Tiers = append(sr.Tiers, a.Tier)
		}
		if last := step.LatestAttempt(); last != nil {
			sr.Outcome = last.Outcome
			sr.LastTrace = traceTail(last.Trace, 3)
		}
		r.Steps = append(r.Steps, sr)

		switch step.Status {
		case models.StepDone:
			r.StepsDone++
		case models.StepFailed:
			r.StepsFailed++
		}
	}
	return r
}

// traceTail renders the last n trace entries.
func traceTail(t models.Trace, n int) string {
	if len(t) > n {
		t = t[len(t)-n:]
	}
	return t.Render()
}
