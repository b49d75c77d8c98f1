// Package agent runs single execution attempts: the reasoning loop
// that alternates backend inference, gate evaluation and tool
// dispatch until the step finishes or a budget ends it.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/bus"
	"github.com/stewardlab/steward/internal/gate"
	"github.com/stewardlab/steward/internal/ledger"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/pkg/models"
)

const (
	// DefaultMaxIterations caps reasoning turns per attempt.
	DefaultMaxIterations = 10
	// DefaultMaxObservation caps observation bytes kept in the trace.
	DefaultMaxObservation = 1500
	// DefaultCompressAfter is the number of recent cycles kept
	// verbatim before older trace is compressed.
	DefaultCompressAfter = 5
	// DefaultInferenceReserve is the worst-case token reservation per
	// inference call.
	DefaultInferenceReserve = 4096
	// DefaultActionReserve is the worst-case token reservation per
	// tool dispatch.
	DefaultActionReserve = 256
)

// Config tunes the reasoning loop. Zero values take package defaults;
// a nil Reviews manager turns every review request into a rejection.
type Config struct {
	// MaxIterations caps reasoning turns per attempt.
	MaxIterations int
	// AttemptTimeout bounds one attempt's wall time. Zero disables it.
	AttemptTimeout time.Duration
	// MaxObservation caps observation bytes kept in the trace.
	MaxObservation int
	// CompressAfter is how many recent cycles stay verbatim when the
	// trace is compressed. Zero disables compression.
	CompressAfter int
	// InferenceReserve is the worst-case token claim per inference.
	InferenceReserve int64
	// ActionReserve is the worst-case token claim per dispatch.
	ActionReserve int64
	// Reviews resolves needs-review gate decisions. Nil rejects.
	Reviews *review.Manager
	// OnPause runs when the attempt suspends for human review.
	OnPause func(reviewID, reason string)
	// OnResume runs when the review resolves, before the outcome is
	// applied.
	OnResume func()
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxObservation <= 0 {
		c.MaxObservation = DefaultMaxObservation
	}
	if c.CompressAfter < 0 {
		c.CompressAfter = DefaultCompressAfter
	}
	if c.InferenceReserve <= 0 {
		c.InferenceReserve = DefaultInferenceReserve
	}
	if c.ActionReserve <= 0 {
		c.ActionReserve = DefaultActionReserve
	}
	return c
}

// AttemptRequest describes one attempt to run.
type AttemptRequest struct {
	// SessionID is the owning session.
	SessionID string
	// Step is the plan step being attempted.
	Step *models.PlanStep
	// Seq is the attempt's 1-based sequence number within the step.
	Seq int
	// Executor is the routed executor profile.
	Executor models.Executor
	// Tier is the tier this attempt runs at.
	Tier models.Tier
	// Feedback carries verifier feedback when re-posing the step.
	Feedback string
	// Steering delivers operator notes, shared across the session.
	Steering *Steering
}

// Runner executes attempts. It is stateless between attempts and safe
// for concurrent use.
type Runner struct {
	backend    backend.Backend
	dispatcher *tools.Dispatcher
	gate       *gate.Gate
	ledger     *ledger.Ledger
	bus        *bus.Bus
	cfg        Config
}

// NewRunner assembles a runner over the session's shared components.
func NewRunner(b backend.Backend, d *tools.Dispatcher, g *gate.Gate, l *ledger.Ledger, eb *bus.Bus, cfg Config) *Runner {
	return &Runner{
		backend:    b,
		dispatcher: d,
		gate:       g,
		ledger:     l,
		bus:        eb,
		cfg:        cfg.withDefaults(),
	}
}

// RunAttempt executes one attempt to completion and returns it. The
// outcome taxonomy lives on the attempt; RunAttempt itself never
// fails. The caller owns persistence and the step transition.
func (r *Runner) RunAttempt(ctx context.Context, req AttemptRequest) *models.Attempt {
	attempt := &models.Attempt{
		Seq:       req.Seq,
		StepID:    req.Step.ID,
		Executor:  req.Executor.ID,
		Tier:      req.Tier,
		StartedAt: time.Now(),
	}

	actx := ctx
	if r.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		defer cancel()
	}

	var (
		trace    models.Trace
		failedFP = make(map[string]int)
		cursor   int
	)

	finish := func(outcome models.AttemptOutcome, answer, detail string) *models.Attempt {
		attempt.Outcome = outcome
		attempt.Answer = answer
		attempt.Error = detail
		abortNote := ""
		if outcome != models.OutcomeSuccess {
			abortNote = detail
		}
		attempt.Trace = normalizeTrace(trace, abortNote)
		attempt.EndedAt = time.Now()
		return attempt
	}

	sys := systemPrompt(r.dispatcher.Registry().Contracts())

	for iter := 1; iter <= r.cfg.MaxIterations; iter++ {
		if actx.Err() != nil {
			outcome, detail := r.interruption(ctx, actx)
			return finish(outcome, "", detail)
		}

		var notes []string
		if req.Steering != nil {
			notes, cursor = req.Steering.Since(cursor)
		}

		if r.cfg.CompressAfter > 0 {
			trace = compressTrace(trace, r.cfg.CompressAfter)
		}

		// Admit the inference against the token budget before any
		// model call.
		res, err := r.ledger.Reserve(req.Step.ID, r.cfg.InferenceReserve)
		if err != nil {
			return finish(models.OutcomeBudgetExceeded, "", err.Error())
		}

		comp, err := r.backend.Complete(actx, backend.Request{
			System:    sys,
			Prompt:    turnPrompt(req, trace, notes),
			Tier:      req.Tier,
			MaxTokens: r.cfg.InferenceReserve,
		})
		if err != nil {
			_ = r.ledger.Release(res)
			if outcome, detail, ok := r.interrupted(ctx, actx); ok {
				return finish(outcome, "", detail)
			}
			return finish(models.OutcomeToolFailure, "", fmt.Sprintf("backend: %v", err))
		}

		used := comp.Tokens()
		warn, _ := r.ledger.Commit(res, used)
		attempt.TokensUsed += used
		r.emitWarning(actx, req, warn)

		t, err := parseTurn(comp.Text)
		if err != nil {
			return finish(models.OutcomeToolFailure, "", fmt.Sprintf("malformed turn: %v", err))
		}

		if thought := joinThought(t.plan, t.thought); thought != "" {
			trace = append(trace, models.TraceEntry{Kind: models.TraceThought, Content: thought})
		}

		if t.done {
			return finish(models.OutcomeSuccess, t.final, "")
		}

		d := *t.action
		d.StepID = req.Step.ID
		d.Executor = req.Executor.ID
		fp := d.Fingerprint()

		trace = append(trace, models.TraceEntry{Kind: models.TraceAction, Content: renderDirective(d)})

		// A directive that already failed twice will not be proposed
		// to the gate a third time.
		if failedFP[fp] >= 2 {
			return finish(models.OutcomeToolFailure, "",
				fmt.Sprintf("repeated failing action %s (fingerprint %s)", d.Tool, fp))
		}

		if err := r.emitAction(actx, req, models.EventActionProposed, models.ActionPayload{
			Tool:        d.Tool,
			Fingerprint: fp,
		}); err != nil {
			return r.emitFailure(ctx, actx, finish, err)
		}

		decision := r.gate.Evaluate(d, gate.SessionContext{
			SessionID:       req.SessionID,
			StepID:          req.Step.ID,
			Executor:        req.Executor.ID,
			HighSensitivity: req.Step.HighSensitivity,
		})

		switch decision.Outcome {
		case gate.OutcomeBlock:
			_ = r.emitAction(actx, req, models.EventActionBlocked, models.ActionPayload{
				Tool:        d.Tool,
				Fingerprint: fp,
				Aggregate:   decision.Score,
				Reason:      decision.Reason,
			})
			return finish(models.OutcomeSafetyBlocked, "", decision.Reason)

		case gate.OutcomeReview:
			reviewID := uuid.New().String()
			if err := r.emitAction(actx, req, models.EventActionBlocked, models.ActionPayload{
				Tool:        d.Tool,
				Fingerprint: fp,
				Aggregate:   decision.Score,
				Reason:      "needs_review: " + decision.Reason,
				ReviewID:    reviewID,
			}); err != nil {
				return r.emitFailure(ctx, actx, finish, err)
			}

			dec, outcome, detail := r.awaitReview(ctx, req, d, decision, reviewID)
			if outcome != "" {
				return finish(outcome, "", detail)
			}

			if err := r.emitAction(actx, req, models.EventActionAuthorized, models.ActionPayload{
				Tool:        d.Tool,
				Fingerprint: fp,
				Aggregate:   decision.Score,
				Reason:      "approved by review " + dec.ReviewID,
				ReviewID:    dec.ReviewID,
			}); err != nil {
				return r.emitFailure(ctx, actx, finish, err)
			}

		case gate.OutcomeAuthorize:
			if err := r.emitAction(actx, req, models.EventActionAuthorized, models.ActionPayload{
				Tool:        d.Tool,
				Fingerprint: fp,
				Aggregate:   decision.Score,
			}); err != nil {
				return r.emitFailure(ctx, actx, finish, err)
			}
		}

		// Admit the dispatch against the action and token budgets.
		warn, err = r.ledger.AdmitAction()
		if err != nil {
			return finish(models.OutcomeBudgetExceeded, "", err.Error())
		}
		r.emitWarning(actx, req, warn)

		res, err = r.ledger.Reserve(req.Step.ID, r.cfg.ActionReserve)
		if err != nil {
			return finish(models.OutcomeBudgetExceeded, "", err.Error())
		}

		obs, err := r.dispatcher.Invoke(actx, d)
		if err != nil {
			_ = r.ledger.Release(res)
			outcome, detail := r.interruption(ctx, actx)
			return finish(outcome, "", detail)
		}
		// The observation's token cost lands when the next inference
		// consumes it; the reservation only guaranteed headroom.
		_, _ = r.ledger.Commit(res, 0)
		attempt.ActionsUsed++

		obs = truncateObservation(obs, r.cfg.MaxObservation)
		r.gate.RecordResult(d.Tool, !obs.IsError)

		content := obs.Output
		if obs.IsError {
			failedFP[fp]++
			content = "error: " + content
		}
		trace = append(trace, models.TraceEntry{Kind: models.TraceObservation, Content: content})
	}

	return finish(models.OutcomeToolFailure, "", "iteration budget exhausted")
}

// awaitReview suspends the attempt on the review channel. It returns
// the approval, or a terminal outcome when the review rejects, times
// out, or the context ends while paused.
func (r *Runner) awaitReview(ctx context.Context, req AttemptRequest, d models.ActionDirective, decision gate.Decision, reviewID string) (review.Decision, models.AttemptOutcome, string) {
	if r.cfg.Reviews == nil {
		return review.Decision{}, models.OutcomeHumanRejected,
			"review required but no reviewer available: " + decision.Reason
	}

	if r.cfg.OnPause != nil {
		r.cfg.OnPause(reviewID, decision.Reason)
	}
	dec, err := r.cfg.Reviews.Request(ctx, review.Review{
		ID:        reviewID,
		SessionID: req.SessionID,
		StepID:    req.Step.ID,
		Kind:      review.KindAction,
		Summary: fmt.Sprintf("%s scored %.2f: %s",
			d.Tool, float64(decision.Score), decision.Reason),
		Detail: renderDirective(d),
		Action: d,
	})
	if r.cfg.OnResume != nil {
		r.cfg.OnResume()
	}
	if err != nil {
		return review.Decision{}, models.OutcomeCanceled, "canceled while awaiting review"
	}
	if !dec.Approved {
		reason := dec.Reason
		if reason == "" {
			reason = "rejected by reviewer"
		}
		return review.Decision{}, models.OutcomeHumanRejected, reason
	}
	return dec, "", ""
}

// emitAction appends one action-lifecycle event. The append is
// durable before the caller proceeds; dispatch never outruns its
// authorization record.
func (r *Runner) emitAction(ctx context.Context, req AttemptRequest, kind models.EventKind, payload models.ActionPayload) error {
	_, err := r.bus.Append(ctx, models.Event{
		SessionID:  req.SessionID,
		Kind:       kind,
		Actor:      req.Executor.ID,
		StepID:     req.Step.ID,
		AttemptSeq: req.Seq,
		Payload:    models.EncodePayload(payload),
	})
	return err
}

// emitWarning forwards a ledger warning onto the bus. Best effort.
func (r *Runner) emitWarning(ctx context.Context, req AttemptRequest, w *ledger.Warning) {
	if w == nil {
		return
	}
	_, _ = r.bus.Append(ctx, models.Event{
		SessionID: req.SessionID,
		Kind:      models.EventBudgetWarning,
		Actor:     "ledger",
		StepID:    req.Step.ID,
		Payload: models.EncodePayload(models.BudgetWarningPayload{
			Dimension: string(w.Dimension),
			Used:      w.Used,
			Limit:     w.Limit,
			Fraction:  w.Fraction,
		}),
	})
}

// emitFailure classifies a failed event append: an interrupted
// context produced it, otherwise the journal is refusing writes and
// the attempt cannot safely continue.
func (r *Runner) emitFailure(parent, actx context.Context, finish func(models.AttemptOutcome, string, string) *models.Attempt, err error) *models.Attempt {
	if outcome, detail, ok := r.interrupted(parent, actx); ok {
		return finish(outcome, "", detail)
	}
	return finish(models.OutcomeToolFailure, "", fmt.Sprintf("event journal: %v", err))
}

// interruption classifies why a context ended: session cancellation
// or the per-attempt timeout.
func (r *Runner) interruption(parent, actx context.Context) (models.AttemptOutcome, string) {
	if parent.Err() != nil {
		return models.OutcomeCanceled, "session canceled"
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) {
		return models.OutcomeTimeout, fmt.Sprintf("attempt timed out after %s", r.cfg.AttemptTimeout)
	}
	return models.OutcomeCanceled, "attempt canceled"
}

// interrupted is interruption with an ok flag for contexts that may
// still be live.
func (r *Runner) interrupted(parent, actx context.Context) (models.AttemptOutcome, string, bool) {
	if actx.Err() == nil && parent.Err() == nil {
		return "", "", false
	}
	outcome, detail := r.interruption(parent, actx)
	return outcome, detail, true
}

// joinThought merges the planning note and reasoning block into one
// trace entry.
func joinThought(plan, thought string) string {
	switch {
	case plan == "":
		return thought
	case thought == "":
		return plan
	default:
		return plan + "\n" + thought
	}
}
