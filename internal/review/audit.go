package review

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// AuditEntry is one resolved review, recorded for later inspection.
type AuditEntry struct {
	ReviewID    string
	SessionID   string
	StepID      string
	Kind        string
	Summary     string
	Approved    bool
	Reason      string
	DecidedBy   string
	RequestedAt time.Time
	DecidedAt   time.Time
}

// AuditStore persists review resolutions in a small standalone
// database, separate from the session store so the audit trail
// survives session purges.
type AuditStore struct {
	db *sql.DB
}

// OpenAudit opens (creating if needed) the audit database at dbPath.
func OpenAudit(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS review_audit (
			review_id TEXT PRIMARY KEY,
			session_id TEXT,
			step_id TEXT,
			kind TEXT,
			summary TEXT,
			approved INT,
			reason TEXT,
			decided_by TEXT,
			requested_at DATETIME,
			decided_at DATETIME
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	return &AuditStore{db: db}, nil
}

// Record inserts one resolution. Re-recording the same review ID
// replaces the earlier row.
func (s *AuditStore) Record(e AuditEntry) error {
	approved := 0
	if e.Approved {
		approved = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO review_audit
			(review_id, session_id, step_id, kind, summary, approved, reason, decided_by, requested_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ReviewID, e.SessionID, e.StepID, e.Kind, e.Summary, approved, e.Reason, e.DecidedBy, e.RequestedAt, e.DecidedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns all resolutions for a session, oldest first.
func (s *AuditStore) List(sessionID string) ([]AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT review_id, session_id, step_id, kind, summary, approved, reason, decided_by, requested_at, decided_at
		FROM review_audit
		WHERE session_id = ?
		ORDER BY decided_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var approved int
		if err := rows.Scan(&e.ReviewID, &e.SessionID, &e.StepID, &e.Kind, &e.Summary,
			&approved, &e.Reason, &e.DecidedBy, &e.RequestedAt, &e.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Approved = approved != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get retrieves one resolution by review ID.
func (s *AuditStore) Get(reviewID string) (*AuditEntry, error) {
	row := s.db.QueryRow(`
		SELECT review_id, session_id, step_id, kind, summary, approved, reason, decided_by, requested_at, decided_at
		FROM review_audit
		WHERE review_id = ?
	`, reviewID)

	var e AuditEntry
	var approved int
	err := row.Scan(&e.ReviewID, &e.SessionID, &e.StepID, &e.Kind, &e.Summary,
		&approved, &e.Reason, &e.DecidedBy, &e.RequestedAt, &e.DecidedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review not found: %s", reviewID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	e.Approved = approved != 0
	return &e, nil
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
