package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stewardlab/steward/internal/agent"
	"github.com/stewardlab/steward/internal/ledger"
	"github.com/stewardlab/steward/internal/router"
	"github.com/stewardlab/steward/internal/verifier"
	"github.com/stewardlab/steward/pkg/models"
)

// attemptResult carries a finished dispatch back to the loop. Exactly
// one of attempt and routingErr is set.
type attemptResult struct {
	stepID     string
	attempt    *models.Attempt
	routingErr error
}

// verdictResult carries a finished verification back to the loop.
type verdictResult struct {
	stepID  string
	verdict verifier.Verdict
	err     error
}

// inflightStep tracks a step owned by a worker goroutine, either
// executing an attempt or awaiting its verdict.
type inflightStep struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// runLoop dispatches ready steps until the plan settles, the context
// ends or the wall clock budget runs out. Only this goroutine touches
// step state and the graph; workers communicate over the two result
// channels, which are buffered wide enough that a worker never blocks
// on send.
func (s *Supervisor) runLoop(ctx context.Context, rs *runState) error {
	inflight := make(map[string]*inflightStep)
	attemptCh := make(chan attemptResult, len(rs.session.Steps)+1)
	verdictCh := make(chan verdictResult, len(rs.session.Steps)+1)

	for {
		select {
		case <-ctx.Done():
			return s.drain(ctx, ctx.Err(), rs, inflight, attemptCh, verdictCh)
		case res := <-attemptCh:
			s.handleAttempt(ctx, rs, res, inflight, verdictCh)
		case v := <-verdictCh:
			s.handleVerdict(ctx, rs, v, inflight)
		default:
			if warn, exceeded := rs.ledger.CheckWallClock(); warn != nil || exceeded {
				if warn != nil {
					s.emitWarning(rs.session.ID, "", *warn)
				}
				if exceeded {
					s.logger.Log("[runLoop] wall clock budget exhausted after %s", rs.ledger.Elapsed().Round(time.Second))
					return s.drain(ctx, errWallClockExhausted, rs, inflight, attemptCh, verdictCh)
				}
			}

			candidates := s.collectCandidates(rs, inflight)
			if len(candidates) == 0 {
				if len(inflight) == 0 {
					s.logger.Log("[runLoop] exiting: nothing dispatchable and nothing in flight")
					return nil
				}
				select {
				case <-ctx.Done():
					return s.drain(ctx, ctx.Err(), rs, inflight, attemptCh, verdictCh)
				case res := <-attemptCh:
					s.handleAttempt(ctx, rs, res, inflight, verdictCh)
				case v := <-verdictCh:
					s.handleVerdict(ctx, rs, v, inflight)
				case <-time.After(s.opts.pollInterval):
				}
				continue
			}

			for _, step := range candidates {
				if err := s.pauseCtrl.WaitIfPaused(ctx); err != nil {
					return s.drain(ctx, err, rs, inflight, attemptCh, verdictCh)
				}
				s.dispatch(ctx, rs, step, inflight, attemptCh)
			}
		}
	}
}

// collectCandidates returns the steps eligible for dispatch this
// pass: dependency-satisfied steps that are not already owned by a
// worker, plus in-place retries the policy has cleared. Newly
// eligible steps transition pending -> ready here so the ready event
// lands before any dispatch.
func (s *Supervisor) collectCandidates(rs *runState, inflight map[string]*inflightStep) []*models.PlanStep {
	var out []*models.PlanStep
	for _, id := range rs.graph.Ready() {
		if _, busy := inflight[id]; busy {
			continue
		}
		step := rs.graph.Step(id)
		if step == nil {
			continue
		}
		switch step.Status {
		case models.StepPending:
			s.setStepStatus(step, models.StepReady)
			s.emitStepReady(rs.session.ID, step)
			out = append(out, step)
		case models.StepReady, models.StepEscalated:
			out = append(out, step)
		case models.StepRunning, models.StepAwaitingVerification:
			if rs.pendingRetry[id] {
				out = append(out, step)
			}
		}
	}
	return out
}

// dispatch hands a step to a worker goroutine: route, execute, report
// back. Sequence, tier and feedback are captured here so the worker
// never reads loop-owned state.
func (s *Supervisor) dispatch(ctx context.Context, rs *runState, step *models.PlanStep, inflight map[string]*inflightStep, attemptCh chan<- attemptResult) {
	if step.Status != models.StepRunning {
		s.setStepStatus(step, models.StepRunning)
	}
	delete(rs.pendingRetry, step.ID)
	feedback := rs.feedback[step.ID]
	delete(rs.feedback, step.ID)

	seq := step.NextAttemptSeq()
	tier := step.Tier
	stepCtx, cancel := context.WithCancel(ctx)
	inflight[step.ID] = &inflightStep{cancel: cancel, startedAt: time.Now()}
	s.logger.Log("[runLoop] dispatching step %s attempt %d at tier %s", step.ID, seq, tier)

	go func() {
		assignment, err := s.router.Acquire(stepCtx, step)
		if err != nil {
			if errors.Is(err, router.ErrRoutingFailure) {
				attemptCh <- attemptResult{stepID: step.ID, routingErr: err}
				return
			}
			// Context ended while queued for a slot.
			now := time.Now().UTC()
			attemptCh <- attemptResult{stepID: step.ID, attempt: &models.Attempt{
				Seq:       seq,
				StepID:    step.ID,
				Tier:      tier,
				Outcome:   models.OutcomeCanceled,
				Error:     "session canceled",
				StartedAt: now,
				EndedAt:   now,
			}}
			return
		}
		attempt := rs.runner.RunAttempt(stepCtx, agent.AttemptRequest{
			SessionID: rs.session.ID,
			Step:      step,
			Seq:       seq,
			Executor:  assignment.Executor,
			Tier:      tier,
			Feedback:  feedback,
			Steering:  s.steering,
		})
		s.router.Release(assignment)
		attemptCh <- attemptResult{stepID: step.ID, attempt: attempt}
	}()
}

// handleAttempt settles a finished dispatch. Failed attempts are
// recorded immediately and fed to the escalation policy; successful
// attempts stay open until verification fixes their final outcome,
// because the attempt record is written exactly once.
func (s *Supervisor) handleAttempt(ctx context.Context, rs *runState, res attemptResult, inflight map[string]*inflightStep, verdictCh chan<- verdictResult) {
	if inf, ok := inflight[res.stepID]; ok {
		inf.cancel()
		delete(inflight, res.stepID)
	}
	step := rs.graph.Step(res.stepID)
	if step == nil {
		return
	}

	if res.routingErr != nil {
		// No executor can serve this capability. No attempt ran, so
		// none is recorded.
		s.logger.Log("[runLoop] step %s unroutable: %v", step.ID, res.routingErr)
		s.failStep(rs, step, fmt.Sprintf("routing: %v", res.routingErr))
		return
	}

	attempt := res.attempt
	step.Attempts = append(step.Attempts, attempt)
	step.AssignedTo = attempt.Executor

	if attempt.Outcome == models.OutcomeSuccess && !rs.draining {
		s.setStepStatus(step, models.StepAwaitingVerification)
		s.transition(rs.session, models.SessionVerifying)
		vctx, vcancel := context.WithCancel(ctx)
		inflight[res.stepID] = &inflightStep{cancel: vcancel, startedAt: time.Now()}
		answer := attempt.Answer
		go func() {
			verdict, err := rs.verifier.Verify(vctx, rs.session.ID, step, answer)
			verdictCh <- verdictResult{stepID: step.ID, verdict: verdict, err: err}
		}()
		return
	}

	if attempt.Outcome == models.OutcomeSuccess {
		// Draining: record the unverified answer and leave the step
		// awaiting verification for a later resume.
		s.setStepStatus(step, models.StepAwaitingVerification)
	}
	s.persistAttempt(attempt)
	s.emitAttemptOutcome(rs.session.ID, attempt)
	s.logger.Log("[runLoop] step %s attempt %d ended %s", step.ID, attempt.Seq, attempt.Outcome)

	if attempt.Outcome == models.OutcomeCanceled || rs.draining {
		s.persistStep(step)
		return
	}
	s.applyPolicy(rs, step, attempt.Outcome, attempt.Error, false)
}

// handleVerdict settles a verification result and writes the
// attempt's final record.
func (s *Supervisor) handleVerdict(ctx context.Context, rs *runState, v verdictResult, inflight map[string]*inflightStep) {
	if inf, ok := inflight[v.stepID]; ok {
		inf.cancel()
		delete(inflight, v.stepID)
	}
	step := rs.graph.Step(v.stepID)
	if step == nil {
		return
	}
	attempt := step.LatestAttempt()
	if attempt == nil {
		return
	}

	if v.err != nil {
		if ctx.Err() != nil || rs.draining {
			// The drain path leaves the step awaiting verification; a
			// resume will repair and re-run it.
			s.persistStep(step)
			return
		}
		if errors.Is(v.err, ledger.ErrBudgetExceeded) {
			attempt.Outcome = models.OutcomeBudgetExceeded
		} else {
			attempt.Outcome = models.OutcomeVerificationFailed
		}
		attempt.Error = fmt.Sprintf("verification: %v", v.err)
		s.persistAttempt(attempt)
		s.emitAttemptOutcome(rs.session.ID, attempt)
		s.logger.Log("[runLoop] step %s verification error: %v", step.ID, v.err)
		s.applyPolicy(rs, step, attempt.Outcome, attempt.Error, false)
		return
	}

	verdict := v.verdict
	s.emitVerified(rs.session.ID, step, verdict)

	if verdict.Outcome == models.VerdictPass {
		s.persistAttempt(attempt)
		s.emitAttemptOutcome(rs.session.ID, attempt)
		step.FinalAnswer = attempt.Answer
		step.AssignedTo = ""
		s.setStepStatus(step, models.StepDone)
		rs.graph.MarkDone(step.ID)
		s.transition(rs.session, models.SessionExecuting)
		s.logger.Log("[runLoop] step %s verified by %s, done", step.ID, verdict.DecidedBy)
		return
	}

	attempt.Outcome = models.OutcomeVerificationFailed
	attempt.Error = verdict.Rationale
	s.persistAttempt(attempt)
	s.emitAttemptOutcome(rs.session.ID, attempt)
	s.logger.Log("[runLoop] step %s rejected by %s: %s", step.ID, verdict.DecidedBy, verdict.Rationale)

	if rs.draining {
		s.failStep(rs, step, verdict.Rationale)
		return
	}
	rs.feedback[step.ID] = verdict.Rationale
	s.applyPolicy(rs, step, models.OutcomeVerificationFailed, verdict.Rationale, verdict.Abstained)
}

// applyPolicy routes a failed attempt through the escalation policy:
// retry in place, raise the tier, or fail the step.
func (s *Supervisor) applyPolicy(rs *runState, step *models.PlanStep, outcome models.AttemptOutcome, detail string, abstained bool) {
	switch s.policy.decide(step, outcome, abstained) {
	case escalationRetry:
		rs.pendingRetry[step.ID] = true
		s.persistStep(step)
		s.logger.Log("[runLoop] step %s retrying at tier %s", step.ID, step.Tier)
	case escalationRaise:
		from := step.Tier
		step.Tier = from.Next()
		s.setStepStatus(step, models.StepEscalated)
		s.emitEscalated(rs.session.ID, step, from, detail)
		s.transition(rs.session, models.SessionEscalated)
		s.logger.Log("[runLoop] step %s escalated %s -> %s", step.ID, from, step.Tier)
	case escalationExhausted:
		s.failStep(rs, step, fmt.Sprintf("%s at tier %s: %s", ErrEscalationExhausted, step.Tier, detail))
	default:
		s.failStep(rs, step, detail)
	}
}

// failStep marks a step failed and cascades the failure to every
// transitive dependent, which can no longer run.
func (s *Supervisor) failStep(rs *runState, step *models.PlanStep, reason string) {
	step.Error = reason
	s.setStepStatus(step, models.StepFailed)
	s.logger.Log("[runLoop] step %s failed: %s", step.ID, reason)

	for _, depID := range rs.graph.MarkFailed(step.ID) {
		dep := rs.graph.Step(depID)
		if dep == nil || dep.Status.Terminal() {
			continue
		}
		dep.BlockedReason = "dependency_failed:" + step.ID
		dep.Error = "blocked by failed dependency"
		s.setStepStatus(dep, models.StepFailed)
		s.logger.Log("[runLoop] step %s blocked by failed dependency %s", depID, step.ID)
	}
}

// drain cancels all in-flight work, waits for every worker to report,
// records what raced in and returns the cause. Workers send on
// buffered channels, so none of them leaks.
func (s *Supervisor) drain(ctx context.Context, cause error, rs *runState, inflight map[string]*inflightStep, attemptCh chan attemptResult, verdictCh chan verdictResult) error {
	rs.draining = true
	s.pauseCtrl.Stop()
	for _, inf := range inflight {
		inf.cancel()
	}
	s.logger.Log("[runLoop] draining %d in-flight steps: %v", len(inflight), cause)

	for len(inflight) > 0 {
		select {
		case res := <-attemptCh:
			s.handleAttempt(ctx, rs, res, inflight, verdictCh)
		case v := <-verdictCh:
			s.handleVerdict(ctx, rs, v, inflight)
		}
	}
	return cause
}
