package models

import (
	"encoding/json"
	"time"
)

// EventKind identifies the type of a session event.
type EventKind string

const (
	// EventStepReady records a step becoming eligible for dispatch.
	EventStepReady EventKind = "step_ready"
	// EventActionProposed records an executor proposing an action.
	EventActionProposed EventKind = "action_proposed"
	// EventActionAuthorized records the gate permitting an action.
	EventActionAuthorized EventKind = "action_authorized"
	// EventActionBlocked records the gate denying an action.
	EventActionBlocked EventKind = "action_blocked"
	// EventAttemptOutcome records the end of an execution attempt.
	EventAttemptOutcome EventKind = "attempt_outcome"
	// EventEscalated records a step moving to a higher tier.
	EventEscalated EventKind = "escalated"
	// EventVerified records a verifier verdict for a step.
	EventVerified EventKind = "verified"
	// EventBudgetWarning records spend crossing the warning threshold.
	EventBudgetWarning EventKind = "budget_warning"
	// EventSessionTerminal records the session reaching a final state.
	EventSessionTerminal EventKind = "session_terminal"
)

// Valid returns true if the kind is a known value.
func (k EventKind) Valid() bool {
	switch k {
	case EventStepReady, EventActionProposed, EventActionAuthorized,
		EventActionBlocked, EventAttemptOutcome, EventEscalated,
		EventVerified, EventBudgetWarning, EventSessionTerminal:
		return true
	default:
		return false
	}
}

// Event is one entry in a session's ordered log. Seq is assigned by
// the bus and is strictly increasing with no gaps within a session.
type Event struct {
	// SessionID is the session this event belongs to.
	SessionID string `json:"session_id"`
	// Seq is the session-local sequence number, starting at 1.
	Seq int64 `json:"seq"`
	// Kind identifies the event type.
	Kind EventKind `json:"kind"`
	// Actor names the component that caused the event, for example
	// "supervisor", "gate", or an executor ID.
	Actor string `json:"actor"`
	// StepID is the related step, if any.
	StepID string `json:"step_id,omitempty"`
	// AttemptSeq is the related attempt number, if any.
	AttemptSeq int `json:"attempt_seq,omitempty"`
	// Payload holds kind-specific detail, JSON-encoded.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp is when the event was appended.
	Timestamp time.Time `json:"timestamp"`
}

// StepReadyPayload details a step_ready event.
type StepReadyPayload struct {
	Description string `json:"description,omitempty"`
	Capability  string `json:"capability"`
	Tier        Tier   `json:"tier"`
}

// ActionPayload details a proposed, authorized, or blocked action.
type ActionPayload struct {
	Tool        string     `json:"tool"`
	Fingerprint string     `json:"fingerprint"`
	Aggregate   TrustScore `json:"aggregate,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	ReviewID    string     `json:"review_id,omitempty"`
}

// AttemptOutcomePayload details an attempt_outcome event.
type AttemptOutcomePayload struct {
	Outcome    AttemptOutcome `json:"outcome"`
	Executor   string         `json:"executor"`
	Tier       Tier           `json:"tier"`
	TokensUsed int64          `json:"tokens_used"`
	Error      string         `json:"error,omitempty"`
}

// EscalatedPayload details an escalated event.
type EscalatedPayload struct {
	FromTier Tier   `json:"from_tier"`
	ToTier   Tier   `json:"to_tier"`
	Reason   string `json:"reason"`
}

// VerifiedPayload details a verified event.
type VerifiedPayload struct {
	Verdict  string `json:"verdict"`
	Verifier string `json:"verifier"`
	Detail   string `json:"detail,omitempty"`
}

// BudgetWarningPayload details a budget_warning event.
type BudgetWarningPayload struct {
	Dimension string  `json:"dimension"`
	Used      int64   `json:"used"`
	Limit     int64   `json:"limit"`
	Fraction  float64 `json:"fraction"`
}

// TerminalPayload details a session_terminal event.
type TerminalPayload struct {
	State       SessionState `json:"state"`
	Reason      string       `json:"reason,omitempty"`
	StepsDone   int          `json:"steps_done"`
	StepsFailed int          `json:"steps_failed"`
}

// EncodePayload marshals a typed payload for attachment to an event.
func EncodePayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// DecodePayload unmarshals an event payload into the given struct.
func DecodePayload[T any](e Event) (T, error) {
	var out T
	if len(e.Payload) == 0 {
		return out, nil
	}
	err := json.Unmarshal(e.Payload, &out)
	return out, err
}
