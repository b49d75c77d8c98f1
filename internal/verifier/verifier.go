// Package verifier adjudicates completed steps against their
// acceptance criteria. The backend returns PASS, FAIL or ABSTAIN;
// abstentions go to the human review channel, so every step ends with
// a definite pass or fail.
package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/ledger"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/pkg/models"
)

// defaultReserve is the worst-case token reservation for one
// adjudication call.
const defaultReserve = 2048

// Verdict is the resolved judgment on a step's answer. Outcome is
// always pass or fail; abstentions resolve through the review channel
// before Verify returns.
type Verdict struct {
	// Outcome is pass or fail.
	Outcome models.Verdict
	// Rationale explains the judgment.
	Rationale string
	// Abstained is true when the backend declined to decide and the
	// resolution came from a human (or the no-reviewer default). The
	// escalation policy treats abstained failures as same-tier
	// retries.
	Abstained bool
	// DecidedBy records the deciding party: "verifier" for backend
	// judgments, the review channel's decider for abstentions, "none"
	// when no reviewer was available.
	DecidedBy string
}

// Verifier adjudicates answers.
type Verifier struct {
	backend backend.Backend
	reviews *review.Manager

	tier      models.Tier
	audit     *review.AuditStore
	ledger    *ledger.Ledger
	onWarning func(ledger.Warning)
	onPause   func(reviewID, reason string)
	onResume  func()
	reserve   int64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTier pins adjudication calls to one tier instead of following
// the step's tier.
func WithTier(t models.Tier) Option {
	return func(v *Verifier) {
		if t.Valid() {
			v.tier = t
		}
	}
}

// WithAudit records backend verdicts in the audit store. Abstentions
// are recorded by the review manager when the human resolves them.
func WithAudit(store *review.AuditStore) Option {
	return func(v *Verifier) { v.audit = store }
}

// WithLedger meters adjudication calls against the session budget.
// onWarning receives threshold warnings and may be nil.
func WithLedger(l *ledger.Ledger, onWarning func(ledger.Warning)) Option {
	return func(v *Verifier) {
		v.ledger = l
		v.onWarning = onWarning
	}
}

// WithPauseHooks runs onPause when an abstention suspends on the
// review channel and onResume when the review resolves. The supervisor
// uses these to stop the wall clock while a human decides.
func WithPauseHooks(onPause func(reviewID, reason string), onResume func()) Option {
	return func(v *Verifier) {
		v.onPause = onPause
		v.onResume = onResume
	}
}

// New creates a Verifier. reviews may be nil; abstentions then
// resolve to failure.
func New(b backend.Backend, reviews *review.Manager, opts ...Option) *Verifier {
	v := &Verifier{
		backend: b,
		reviews: reviews,
		reserve: defaultReserve,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify judges the answer against the step's acceptance criteria.
// The returned verdict is always pass or fail. Errors are
// infrastructure failures (backend, budget, canceled context), not
// judgments.
func (v *Verifier) Verify(ctx context.Context, sessionID string, step *models.PlanStep, answer string) (Verdict, error) {
	requestedAt := time.Now()

	if strings.TrimSpace(answer) == "" {
		verdict := Verdict{Outcome: models.VerdictFail, Rationale: "empty answer", DecidedBy: "verifier"}
		v.record(sessionID, step, verdict, requestedAt)
		return verdict, nil
	}

	tier := v.tier
	if tier == "" {
		tier = step.Tier
	}
	if !tier.Valid() {
		tier = models.TierStandard
	}

	var res ledger.Reservation
	if v.ledger != nil {
		var err error
		res, err = v.ledger.Reserve(step.ID, v.reserve)
		if err != nil {
			return Verdict{}, fmt.Errorf("verification inference: %w", err)
		}
	}

	criteria := step.AcceptanceCriteria
	if criteria == "" {
		criteria = "(none stated; judge whether the answer completes the step as described)"
	}

	completion, err := v.backend.Complete(ctx, backend.Request{
		System:    verdictSystem,
		Prompt:    fmt.Sprintf(verdictPrompt, step.Description, criteria, answer),
		Tier:      tier,
		MaxTokens: 512,
	})
	if err != nil {
		if v.ledger != nil {
			_ = v.ledger.Release(res)
		}
		return Verdict{}, fmt.Errorf("verification inference: %w", err)
	}
	if v.ledger != nil {
		warning, _ := v.ledger.Commit(res, completion.Tokens())
		if warning != nil && v.onWarning != nil {
			v.onWarning(*warning)
		}
	}

	outcome, rationale := parseVerdict(completion.Text)
	if outcome == models.VerdictAbstain {
		return v.adjudicate(ctx, sessionID, step, answer, rationale)
	}

	verdict := Verdict{Outcome: outcome, Rationale: rationale, DecidedBy: "verifier"}
	v.record(sessionID, step, verdict, requestedAt)
	return verdict, nil
}

// adjudicate routes an abstention to the review channel. Without a
// reviewer the conservative resolution is failure.
func (v *Verifier) adjudicate(ctx context.Context, sessionID string, step *models.PlanStep, answer, rationale string) (Verdict, error) {
	if v.reviews == nil {
		verdict := Verdict{
			Outcome:   models.VerdictFail,
			Rationale: "verifier abstained and no reviewer is available",
			Abstained: true,
			DecidedBy: "none",
		}
		v.record(sessionID, step, verdict, time.Now())
		return verdict, nil
	}

	detail := answer
	if rationale != "" {
		detail = fmt.Sprintf("%s\n\nVerifier note: %s", answer, rationale)
	}
	reviewID := uuid.New().String()
	if v.onPause != nil {
		reason := "verifier abstained"
		if rationale != "" {
			reason = "verifier abstained: " + rationale
		}
		v.onPause(reviewID, reason)
	}
	decision, err := v.reviews.Request(ctx, review.Review{
		ID:        reviewID,
		SessionID: sessionID,
		StepID:    step.ID,
		Kind:      review.KindVerdict,
		Summary:   fmt.Sprintf("verify %q", shorten(step.Description, 80)),
		Detail:    detail,
	})
	if v.onResume != nil {
		v.onResume()
	}
	if err != nil {
		return Verdict{}, fmt.Errorf("verdict review: %w", err)
	}

	verdict := Verdict{Abstained: true, DecidedBy: decision.DecidedBy}
	if decision.Approved {
		verdict.Outcome = models.VerdictPass
		verdict.Rationale = "approved by reviewer"
	} else {
		verdict.Outcome = models.VerdictFail
		verdict.Rationale = "rejected by reviewer"
	}
	if decision.Reason != "" {
		verdict.Rationale = decision.Reason
	}
	// The review manager records this resolution in the audit store.
	return verdict, nil
}

// record writes a backend or default verdict to the audit store.
func (v *Verifier) record(sessionID string, step *models.PlanStep, verdict Verdict, requestedAt time.Time) {
	if v.audit == nil {
		return
	}
	_ = v.audit.Record(review.AuditEntry{
		ReviewID:    uuid.New().String(),
		SessionID:   sessionID,
		StepID:      step.ID,
		Kind:        string(review.KindVerdict),
		Summary:     fmt.Sprintf("verify %q", shorten(step.Description, 80)),
		Approved:    verdict.Outcome == models.VerdictPass,
		Reason:      verdict.Rationale,
		DecidedBy:   verdict.DecidedBy,
		RequestedAt: requestedAt,
		DecidedAt:   time.Now(),
	})
}

// parseVerdict extracts the leading verdict and rationale from a
// backend response. A VERDICT: line wins; otherwise the first
// non-empty line may carry a bare verdict word. Anything unreadable
// is an abstention.
func parseVerdict(response string) (models.Verdict, string) {
	var outcome models.Verdict
	var rationale string
	sawContent := false

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "VERDICT:") {
			if outcome == "" {
				outcome = verdictWord(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:")))
			}
			continue
		}
		if strings.HasPrefix(line, "RATIONALE:") {
			if rationale == "" {
				rationale = strings.TrimSpace(strings.TrimPrefix(line, "RATIONALE:"))
			}
			continue
		}
		if !sawContent && outcome == "" {
			outcome = verdictWord(line)
		}
		sawContent = true
	}

	if outcome == "" {
		outcome = models.VerdictAbstain
	}
	return outcome, rationale
}

// verdictWord maps a verdict token to an outcome. Unknown tokens map
// to the empty verdict so the caller can keep looking.
func verdictWord(s string) models.Verdict {
	switch upper := strings.ToUpper(s); {
	case strings.HasPrefix(upper, "PASS"):
		return models.VerdictPass
	case strings.HasPrefix(upper, "FAIL"):
		return models.VerdictFail
	case strings.HasPrefix(upper, "ABSTAIN"):
		return models.VerdictAbstain
	}
	return ""
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
