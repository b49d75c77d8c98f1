// Package review provides the human review channel: blocking requests
// for a decision on a withheld action or an abstained verdict, and an
// audit store recording every resolution.
package review

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardlab/steward/pkg/models"
)

// Kind classifies what a review asks the human to decide.
type Kind string

const (
	// KindAction asks whether a gate-withheld action may run.
	KindAction Kind = "action"
	// KindVerdict asks the human to adjudicate an abstained
	// verification.
	KindVerdict Kind = "verdict"
)

// Review is one request for a human decision. The requester blocks
// until a decision is submitted or its context ends.
type Review struct {
	// ID uniquely identifies this request. Request assigns one when
	// empty.
	ID string
	// SessionID is the owning session.
	SessionID string
	// StepID is the step the review concerns.
	StepID string
	// Kind says what is being decided.
	Kind Kind
	// Summary is a one-line statement of the question.
	Summary string
	// Detail carries the full content under review: the rendered
	// directive for an action, the produced answer for a verdict.
	Detail string
	// Action is the withheld directive, set for KindAction.
	Action models.ActionDirective
	// RequestedAt is when the request was created.
	RequestedAt time.Time
}

// Decision is the human's answer to a review request.
type Decision struct {
	// ReviewID links the decision to its request.
	ReviewID string
	// Approved is true when the action may run or the verdict is a
	// pass.
	Approved bool
	// Reason carries the reviewer's note, mainly for rejections.
	Reason string
	// DecidedBy records who resolved the review: "user" for a human,
	// "timeout" when a configured deadline expired.
	DecidedBy string
}

// Manager routes review requests to a single consumer (TUI or
// terminal prompt) and decisions back to the blocked requesters.
type Manager struct {
	// pending maps review IDs to channels waiting for decisions.
	pending map[string]chan Decision
	// requestCh delivers requests to the consumer.
	requestCh chan Review
	// timeout auto-denies a request after this long. Zero waits
	// forever.
	timeout time.Duration
	// audit records resolutions when set.
	audit *AuditStore
	mu    sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets a deadline after which an unanswered request is
// denied with DecidedBy "timeout". Zero or negative disables it.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithAudit attaches an audit store; every resolution is recorded.
func WithAudit(store *AuditStore) ManagerOption {
	return func(m *Manager) { m.audit = store }
}

// NewManager creates a Manager with no timeout and a small request
// buffer.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		pending:   make(map[string]chan Decision),
		requestCh: make(chan Review, 10),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestCh returns the channel the consumer listens on for incoming
// review requests.
func (m *Manager) RequestCh() <-chan Review {
	return m.requestCh
}

// Request blocks until a decision arrives for r, the configured
// timeout expires, or ctx ends. A timeout resolves as a denial rather
// than an error so callers treat it like a rejection.
func (m *Manager) Request(ctx context.Context, r Review) (Decision, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now()
	}

	responseCh := make(chan Decision, 1)

	m.mu.Lock()
	m.pending[r.ID] = responseCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, r.ID)
		m.mu.Unlock()
	}()

	select {
	case m.requestCh <- r:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}

	var timeoutCh <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case d := <-responseCh:
		d.ReviewID = r.ID
		m.record(r, d)
		return d, nil
	case <-timeoutCh:
		d := Decision{
			ReviewID:  r.ID,
			Approved:  false,
			Reason:    "review timed out",
			DecidedBy: "timeout",
		}
		m.record(r, d)
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Submit delivers a decision for a pending request. Decisions for
// unknown or already-resolved reviews are dropped.
func (m *Manager) Submit(d Decision) {
	m.mu.RLock()
	ch, exists := m.pending[d.ReviewID]
	m.mu.RUnlock()

	if exists {
		select {
		case ch <- d:
		default:
			// Decision already submitted.
		}
	}
}

// HasPending returns true if the review is still awaiting a decision.
func (m *Manager) HasPending(reviewID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pending[reviewID]
	return exists
}

// PendingCount returns the number of unresolved requests.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pending)
}

// record writes the resolution to the audit store when one is
// attached. Audit failures never block the decision path.
func (m *Manager) record(r Review, d Decision) {
	if m.audit == nil {
		return
	}
	_ = m.audit.Record(AuditEntry{
		ReviewID:    r.ID,
		SessionID:   r.SessionID,
		StepID:      r.StepID,
		Kind:        string(r.Kind),
		Summary:     r.Summary,
		Approved:    d.Approved,
		Reason:      d.Reason,
		DecidedBy:   d.DecidedBy,
		RequestedAt: r.RequestedAt,
		DecidedAt:   time.Now(),
	})
}
