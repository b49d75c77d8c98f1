package state

import (
	"fmt"
	"log"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

// InterruptedSession describes a session found in a non-terminal
// state on startup.
type InterruptedSession struct {
	SessionID    string
	Goal         string
	State        models.SessionState
	StartedAt    time.Time
	LastActivity time.Time
	OpenSteps    int
}

// RecoveryManager detects and repairs sessions interrupted by a crash
// or kill. In-flight work cannot survive a restart, so recovery
// records a canceled attempt for every step that was mid-execution
// and returns those steps to the ready queue.
type RecoveryManager struct {
	db Store
}

// NewRecoveryManager creates a RecoveryManager over the given store.
func NewRecoveryManager(db Store) *RecoveryManager {
	return &RecoveryManager{db: db}
}

// CheckForInterrupted returns the most recent interrupted session, or
// nil if every session reached a terminal state.
func (rm *RecoveryManager) CheckForInterrupted() (*InterruptedSession, error) {
	sessions, err := rm.db.ListInterruptedSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	s := sessions[0]
	steps, err := rm.db.ListSteps(s.ID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}

	open := 0
	lastActivity := s.CreatedAt
	for _, step := range steps {
		if !step.Status.Terminal() {
			open++
		}
		attempts, err := rm.db.ListAttempts(step.ID)
		if err != nil {
			return nil, fmt.Errorf("list attempts: %w", err)
		}
		for _, a := range attempts {
			if a.EndedAt.After(lastActivity) {
				lastActivity = a.EndedAt
			}
		}
	}

	return &InterruptedSession{
		SessionID:    s.ID,
		Goal:         s.Goal,
		State:        s.State,
		StartedAt:    s.CreatedAt,
		LastActivity: lastActivity,
		OpenSteps:    open,
	}, nil
}

// Repair prepares an interrupted session for resumption. Steps caught
// mid-flight get a canceled attempt on the record and drop back to
// ready so the scheduler re-dispatches them. The session itself is
// reset to executing.
func (rm *RecoveryManager) Repair(sessionID string) error {
	session, err := rm.db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if session.State.Terminal() {
		return fmt.Errorf("session %s already finished (%s)", sessionID, session.State)
	}

	steps, err := rm.db.ListSteps(sessionID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}

	now := time.Now().UTC()
	repaired := 0
	for _, step := range steps {
		switch step.Status {
		case models.StepRunning, models.StepAwaitingVerification, models.StepEscalated:
		default:
			continue
		}

		attempts, err := rm.db.ListAttempts(step.ID)
		if err != nil {
			return fmt.Errorf("list attempts for %s: %w", step.ID, err)
		}
		canceled := &models.Attempt{
			Seq:       len(attempts) + 1,
			StepID:    step.ID,
			Executor:  step.AssignedTo,
			Tier:      step.Tier,
			Outcome:   models.OutcomeCanceled,
			Error:     "interrupted by shutdown",
			StartedAt: now,
			EndedAt:   now,
		}
		if err := rm.db.CreateAttempt(canceled); err != nil {
			return fmt.Errorf("record canceled attempt for %s: %w", step.ID, err)
		}

		step.Status = models.StepReady
		step.AssignedTo = ""
		if err := rm.db.UpdateStep(step); err != nil {
			return fmt.Errorf("reset step %s: %w", step.ID, err)
		}
		repaired++
	}

	session.State = models.SessionExecuting
	if err := rm.db.UpdateSession(session); err != nil {
		return fmt.Errorf("reset session state: %w", err)
	}

	log.Printf("Session %s repaired: %d in-flight steps returned to ready", sessionID, repaired)
	return nil
}

// Abandon closes out an interrupted session without resuming it.
// Non-terminal steps are marked failed and the session aborted.
func (rm *RecoveryManager) Abandon(sessionID string) error {
	session, err := rm.db.GetSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	steps, err := rm.db.ListSteps(sessionID)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}

	now := time.Now().UTC()
	for _, step := range steps {
		if step.Status.Terminal() {
			continue
		}
		step.Status = models.StepFailed
		step.Error = "session abandoned after interruption"
		step.CompletedAt = &now
		if err := rm.db.UpdateStep(step); err != nil {
			return fmt.Errorf("fail step %s: %w", step.ID, err)
		}
	}

	session.State = models.SessionAborted
	session.AbortReason = "abandoned after interruption"
	session.CompletedAt = &now
	if err := rm.db.UpdateSession(session); err != nil {
		return fmt.Errorf("abort session: %w", err)
	}

	log.Printf("Session %s abandoned and marked aborted", sessionID)
	return nil
}
