// Package state provides SQLite-based persistence for steward.
package state

import (
	"context"
	"io"

	"github.com/stewardlab/steward/pkg/models"
)

// SessionStore handles session-related persistence operations.
type SessionStore interface {
	CreateSession(s *models.Session) error
	GetSession(id string) (*models.Session, error)
	UpdateSession(s *models.Session) error
	LoadSession(id string) (*models.Session, error)
	ListInterruptedSessions() ([]*models.Session, error)
}

// StepStore handles step-related persistence operations.
type StepStore interface {
	CreateStep(sessionID string, step *models.PlanStep) error
	GetStep(id string) (*models.PlanStep, error)
	UpdateStep(step *models.PlanStep) error
	ListSteps(sessionID string) ([]*models.PlanStep, error)
}

// AttemptStore handles attempt-related persistence operations.
type AttemptStore interface {
	CreateAttempt(a *models.Attempt) error
	ListAttempts(stepID string) ([]*models.Attempt, error)
}

// EventStore handles the durable session event log.
type EventStore interface {
	AppendEvent(ctx context.Context, e models.Event) error
	ListEvents(sessionID string) ([]models.Event, error)
	LastEventSeq(sessionID string) (int64, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence. The supervisor
// works against this interface rather than the concrete SQLite
// implementation. It composes focused sub-interfaces.
type Store interface {
	io.Closer
	Migrator
	SessionStore
	StepStore
	AttemptStore
	EventStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store        = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ StepStore    = (*DB)(nil)
	_ AttemptStore = (*DB)(nil)
	_ EventStore   = (*DB)(nil)
)
