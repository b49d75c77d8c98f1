package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

// Session CRUD operations

// CreateSession inserts a new session row.
func (db *DB) CreateSession(s *models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, goal, state, token_budget, wall_clock_budget_ns, created_at, completed_at, abort_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Goal, string(s.State), s.TokenBudget, int64(s.WallClockBudget),
		formatTime(s.CreatedAt), nullableTimeString(s.CompletedAt), s.AbortReason)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, without its steps.
// Returns nil if the session does not exist.
func (db *DB) GetSession(id string) (*models.Session, error) {
	row := db.QueryRow(`
		SELECT id, goal, state, token_budget, wall_clock_budget_ns, created_at, completed_at, abort_reason
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// UpdateSession updates a session's mutable fields.
func (db *DB) UpdateSession(s *models.Session) error {
	_, err := db.Exec(`
		UPDATE sessions SET state = ?, token_budget = ?, wall_clock_budget_ns = ?, completed_at = ?, abort_reason = ?
		WHERE id = ?
	`, string(s.State), s.TokenBudget, int64(s.WallClockBudget),
		nullableTimeString(s.CompletedAt), s.AbortReason, s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// ListSessions lists sessions, optionally filtered by state, newest first.
func (db *DB) ListSessions(state *models.SessionState) ([]*models.Session, error) {
	var rows *sql.Rows
	var err error

	if state != nil {
		rows, err = db.Query(`
			SELECT id, goal, state, token_budget, wall_clock_budget_ns, created_at, completed_at, abort_reason
			FROM sessions WHERE state = ? ORDER BY created_at DESC
		`, string(*state))
	} else {
		rows, err = db.Query(`
			SELECT id, goal, state, token_budget, wall_clock_budget_ns, created_at, completed_at, abort_reason
			FROM sessions ORDER BY created_at DESC
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListInterruptedSessions returns sessions left in a non-terminal
// state, newest first.
func (db *DB) ListInterruptedSessions() ([]*models.Session, error) {
	all, err := db.ListSessions(nil)
	if err != nil {
		return nil, err
	}
	var out []*models.Session
	for _, s := range all {
		if !s.State.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

// LoadSession retrieves a session with its steps and their attempts.
func (db *DB) LoadSession(id string) (*models.Session, error) {
	s, err := db.GetSession(id)
	if err != nil || s == nil {
		return s, err
	}
	steps, err := db.ListSteps(id)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		attempts, err := db.ListAttempts(step.ID)
		if err != nil {
			return nil, err
		}
		step.Attempts = attempts
	}
	s.Steps = steps
	return s, nil
}

func scanSession(scan func(...any) error) (*models.Session, error) {
	var s models.Session
	var state string
	var wallNS int64
	var createdAt string
	var completedAt, abortReason sql.NullString

	err := scan(&s.ID, &s.Goal, &state, &s.TokenBudget, &wallNS, &createdAt, &completedAt, &abortReason)
	if err != nil {
		return nil, err
	}

	s.State = models.SessionState(state)
	s.WallClockBudget = time.Duration(wallNS)
	s.CreatedAt, _ = parseTime(createdAt)
	s.CompletedAt = parseNullableTime(completedAt)
	if abortReason.Valid {
		s.AbortReason = abortReason.String
	}
	return &s, nil
}

// Step CRUD operations

// CreateStep inserts a new step row for a session.
func (db *DB) CreateStep(sessionID string, step *models.PlanStep) error {
	dependsOn, _ := json.Marshal(step.DependsOn)

	_, err := db.Exec(`
		INSERT INTO steps (id, session_id, description, capability, depends_on, tier, status,
			acceptance_criteria, high_sensitivity, assigned_to, ordinal, created_at, completed_at,
			final_answer, blocked_reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, step.ID, sessionID, step.Description, step.Capability, string(dependsOn),
		string(step.Tier), string(step.Status), step.AcceptanceCriteria,
		boolToInt(step.HighSensitivity), step.AssignedTo, step.Ordinal,
		formatTime(step.CreatedAt), nullableTimeString(step.CompletedAt),
		step.FinalAnswer, step.BlockedReason, step.Error)
	if err != nil {
		return fmt.Errorf("create step: %w", err)
	}
	return nil
}

// GetStep retrieves a step by ID, without its attempts.
// Returns nil if the step does not exist.
func (db *DB) GetStep(id string) (*models.PlanStep, error) {
	row := db.QueryRow(`
		SELECT id, description, capability, depends_on, tier, status, acceptance_criteria,
			high_sensitivity, assigned_to, ordinal, created_at, completed_at, final_answer,
			blocked_reason, error
		FROM steps WHERE id = ?
	`, id)

	step, err := scanStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get step: %w", err)
	}
	return step, nil
}

// UpdateStep updates a step's mutable fields.
func (db *DB) UpdateStep(step *models.PlanStep) error {
	_, err := db.Exec(`
		UPDATE steps SET tier = ?, status = ?, assigned_to = ?, completed_at = ?,
			final_answer = ?, blocked_reason = ?, error = ?
		WHERE id = ?
	`, string(step.Tier), string(step.Status), step.AssignedTo,
		nullableTimeString(step.CompletedAt), step.FinalAnswer,
		step.BlockedReason, step.Error, step.ID)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	return nil
}

// ListSteps lists a session's steps in plan order, without attempts.
func (db *DB) ListSteps(sessionID string) ([]*models.PlanStep, error) {
	rows, err := db.Query(`
		SELECT id, description, capability, depends_on, tier, status, acceptance_criteria,
			high_sensitivity, assigned_to, ordinal, created_at, completed_at, final_answer,
			blocked_reason, error
		FROM steps WHERE session_id = ? ORDER BY ordinal
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.PlanStep
	for rows.Next() {
		step, err := scanStep(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func scanStep(scan func(...any) error) (*models.PlanStep, error) {
	var step models.PlanStep
	var dependsOn, acceptance, assignedTo, finalAnswer, blockedReason, stepErr sql.NullString
	var tier, status string
	var sensitivity int
	var createdAt string
	var completedAt sql.NullString

	err := scan(&step.ID, &step.Description, &step.Capability, &dependsOn, &tier, &status,
		&acceptance, &sensitivity, &assignedTo, &step.Ordinal, &createdAt, &completedAt,
		&finalAnswer, &blockedReason, &stepErr)
	if err != nil {
		return nil, err
	}

	if dependsOn.Valid {
		json.Unmarshal([]byte(dependsOn.String), &step.DependsOn)
	}
	step.Tier = models.Tier(tier)
	step.Status = models.StepStatus(status)
	if acceptance.Valid {
		step.AcceptanceCriteria = acceptance.String
	}
	step.HighSensitivity = sensitivity != 0
	if assignedTo.Valid {
		step.AssignedTo = assignedTo.String
	}
	step.CreatedAt, _ = parseTime(createdAt)
	step.CompletedAt = parseNullableTime(completedAt)
	if finalAnswer.Valid {
		step.FinalAnswer = finalAnswer.String
	}
	if blockedReason.Valid {
		step.BlockedReason = blockedReason.String
	}
	if stepErr.Valid {
		step.Error = stepErr.String
	}
	return &step, nil
}

// Attempt operations

// CreateAttempt inserts a finished attempt. Attempts are append-only.
func (db *DB) CreateAttempt(a *models.Attempt) error {
	_, err := db.Exec(`
		INSERT INTO attempts (step_id, seq, executor, tier, outcome, answer, error,
			tokens_used, actions_used, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.StepID, a.Seq, a.Executor, string(a.Tier), string(a.Outcome), a.Answer, a.Error,
		a.TokensUsed, a.ActionsUsed, formatTime(a.StartedAt), nullableTimeString(&a.EndedAt))
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// ListAttempts lists a step's attempts in sequence order.
func (db *DB) ListAttempts(stepID string) ([]*models.Attempt, error) {
	rows, err := db.Query(`
		SELECT step_id, seq, executor, tier, outcome, answer, error, tokens_used,
			actions_used, started_at, ended_at
		FROM attempts WHERE step_id = ? ORDER BY seq
	`, stepID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.Attempt
	for rows.Next() {
		var a models.Attempt
		var tier, outcome string
		var answer, attemptErr sql.NullString
		var startedAt string
		var endedAt sql.NullString

		if err := rows.Scan(&a.StepID, &a.Seq, &a.Executor, &tier, &outcome, &answer,
			&attemptErr, &a.TokensUsed, &a.ActionsUsed, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Tier = models.Tier(tier)
		a.Outcome = models.AttemptOutcome(outcome)
		if answer.Valid {
			a.Answer = answer.String
		}
		if attemptErr.Valid {
			a.Error = attemptErr.String
		}
		a.StartedAt, _ = parseTime(startedAt)
		if end := parseNullableTime(endedAt); end != nil {
			a.EndedAt = *end
		}
		attempts = append(attempts, &a)
	}
	return attempts, nil
}

// Event operations

// AppendEvent durably inserts one event. The (session_id, seq)
// primary key rejects duplicate sequence numbers.
func (db *DB) AppendEvent(ctx context.Context, e models.Event) error {
	_, err := db.Exec(`
		INSERT INTO events (session_id, seq, kind, actor, step_id, attempt_seq, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SessionID, e.Seq, string(e.Kind), e.Actor, e.StepID, e.AttemptSeq,
		string(e.Payload), formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns a session's events in sequence order.
func (db *DB) ListEvents(sessionID string) ([]models.Event, error) {
	rows, err := db.Query(`
		SELECT session_id, seq, kind, actor, step_id, attempt_seq, payload, timestamp
		FROM events WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var kind string
		var stepID, payload sql.NullString
		var attemptSeq sql.NullInt64
		var timestamp string

		if err := rows.Scan(&e.SessionID, &e.Seq, &kind, &e.Actor, &stepID, &attemptSeq,
			&payload, &timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		if stepID.Valid {
			e.StepID = stepID.String
		}
		if attemptSeq.Valid {
			e.AttemptSeq = int(attemptSeq.Int64)
		}
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Timestamp, _ = parseTime(timestamp)
		events = append(events, e)
	}
	return events, nil
}

// LastEventSeq returns the highest sequence number recorded for a
// session, or zero if it has no events.
func (db *DB) LastEventSeq(sessionID string) (int64, error) {
	var seq int64
	row := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id = ?", sessionID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("last event seq: %w", err)
	}
	return seq, nil
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTimeString(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}
