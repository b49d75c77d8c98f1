package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stewardlab/steward/internal/agent"
	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/bus"
	"github.com/stewardlab/steward/internal/gate"
	"github.com/stewardlab/steward/internal/graph"
	"github.com/stewardlab/steward/internal/ledger"
	"github.com/stewardlab/steward/internal/planner"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/router"
	"github.com/stewardlab/steward/internal/state"
	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/internal/verifier"
	"github.com/stewardlab/steward/pkg/models"
)

// Supervisor drives a session from goal to terminal report. It owns
// the planner, router, gate, verifier, budget ledger and event bus,
// and runs the dispatch loop that moves plan steps through their
// lifecycle. A Supervisor handles one session at a time; Run and
// Resume must not be called concurrently on the same instance.
type Supervisor struct {
	backend  backend.Backend
	tools    *tools.Dispatcher
	store    state.Store
	registry *router.Registry
	router   *router.Router
	events   *bus.Bus
	reviews  *review.Manager
	gate     *gate.Gate
	planner  *planner.Planner
	policy   escalationPolicy

	pauseCtrl *PauseController
	steering  *agent.Steering
	logger    *DebugLogger
	opts      *supervisorOptions

	mu        sync.Mutex
	followups []string
}

// errWallClockExhausted aborts the run loop when the session's wall
// clock budget runs out.
var errWallClockExhausted = errors.New("wall clock budget exhausted")

// New assembles a supervisor from the required backend and tool
// dispatcher plus functional options. Omitting WithStore yields an
// in-memory session that cannot be resumed.
func New(req RequiredConfig, opts ...Option) (*Supervisor, error) {
	if req.Backend == nil {
		return nil, errors.New("supervisor requires a backend")
	}
	if req.Tools == nil {
		return nil, errors.New("supervisor requires a tool dispatcher")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	if o.registry == nil {
		o.registry = router.NewRegistry()
	}

	events := o.events
	if events == nil {
		var journal bus.Journal
		if o.store != nil {
			journal = o.store
		}
		events = bus.New(journal)
	}

	s := &Supervisor{
		backend:   req.Backend,
		tools:     req.Tools,
		store:     o.store,
		registry:  o.registry,
		router:    router.New(o.registry, o.ceilings),
		events:    events,
		reviews:   o.reviews,
		gate:      gate.New(req.Tools.Registry(), o.scopePolicy, o.compliance, o.gateOpts...),
		planner:   planner.New(req.Backend, o.plannerOpts...),
		policy:    escalationPolicy{sameTierRetries: o.sameTierRetries},
		pauseCtrl: NewPauseController(),
		steering:  agent.NewSteering(),
		logger:    o.logger,
		opts:      o,
	}
	s.router.SetDebugLog(s.logger.Enabled())
	return s, nil
}

// Events returns the session event bus, for subscribers such as a
// watch UI.
func (s *Supervisor) Events() *bus.Bus {
	return s.events
}

// Steer queues a mid-flight instruction. Executors fold pending notes
// into their next reasoning turn; the note does not interrupt an
// action already in progress.
func (s *Supervisor) Steer(msg string) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	s.steering.Add(msg)
	s.logger.Log("[supervisor] steering note queued: %s", msg)
}

// EnqueueFollowup records a deferred request to surface in the final
// report instead of expanding the live plan.
func (s *Supervisor) EnqueueFollowup(msg string) {
	if strings.TrimSpace(msg) == "" {
		return
	}
	s.mu.Lock()
	s.followups = append(s.followups, msg)
	s.mu.Unlock()
	s.logger.Log("[supervisor] followup queued: %s", msg)
}

func (s *Supervisor) takeFollowups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.followups))
	copy(out, s.followups)
	return out
}

// Run plans the query, executes the plan to a terminal state and
// returns the session report. The returned error is nil when the
// session completed (even with failed steps); a cancellation or wall
// clock abort returns both the report and the cause.
func (s *Supervisor) Run(ctx context.Context, query string) (*Report, error) {
	session := &models.Session{
		ID:              uuid.New().String(),
		Goal:            query,
		State:           models.SessionPlanning,
		TokenBudget:     s.opts.tokenBudget,
		WallClockBudget: s.opts.wallBudget,
		CreatedAt:       time.Now().UTC(),
	}
	if s.store != nil {
		if err := s.store.CreateSession(session); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}
	s.logger.Log("[supervisor] session %s started: %s", session.ID, query)

	steps, err := s.plan(ctx, query)
	if err != nil {
		s.abortPlanning(session, err)
		return nil, err
	}
	now := time.Now().UTC()
	for _, step := range steps {
		if step.Status == "" {
			step.Status = models.StepPending
		}
		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}
	}
	session.Steps = steps
	if s.store != nil {
		for _, step := range steps {
			if err := s.store.CreateStep(session.ID, step); err != nil {
				err = fmt.Errorf("persist step %s: %w", step.ID, err)
				s.abortPlanning(session, err)
				return nil, err
			}
		}
	}
	s.logger.Log("[supervisor] plan accepted with %d steps", len(steps))

	rs, err := s.newRunState(session)
	if err != nil {
		s.abortPlanning(session, err)
		return nil, err
	}

	s.transition(rs.session, models.SessionExecuting)
	rs.ledger.StartClock()

	loopErr := s.runLoop(ctx, rs)
	return s.finalize(rs, loopErr)
}

// Resume repairs and re-executes a previously interrupted session.
// Done and failed steps keep their outcomes; interrupted steps get a
// canceled attempt on record and run again. Prior token and action
// spend counts against the budget, the wall clock restarts.
func (s *Supervisor) Resume(ctx context.Context, sessionID string) (*Report, error) {
	if s.store == nil {
		return nil, errors.New("resume requires a store")
	}
	rm := state.NewRecoveryManager(s.store)
	if err := rm.Repair(sessionID); err != nil {
		return nil, fmt.Errorf("repair session: %w", err)
	}
	session, err := s.store.LoadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("unknown session %s", sessionID)
	}

	lastSeq, err := s.store.LastEventSeq(sessionID)
	if err != nil {
		log.Printf("[supervisor] warning: read event seq for %s: %v", sessionID, err)
	} else {
		s.events.Prime(sessionID, lastSeq)
	}

	rs, err := s.newRunState(session)
	if err != nil {
		return nil, err
	}

	var tokens, actions int64
	open := 0
	for _, step := range session.Steps {
		switch step.Status {
		case models.StepDone:
			rs.graph.MarkDone(step.ID)
		case models.StepFailed:
			rs.graph.MarkFailed(step.ID)
		default:
			open++
		}
		for _, a := range step.Attempts {
			tokens += a.TokensUsed
			actions += int64(a.ActionsUsed)
		}
	}
	rs.ledger.Restore(tokens, actions)
	rs.ledger.StartClock()

	s.logger.Log("[supervisor] resuming session %s: %d steps open, %d tokens spent",
		sessionID, open, tokens)
	log.Printf("[supervisor] resuming session %s (%d steps open)", sessionID, open)

	loopErr := s.runLoop(ctx, rs)
	return s.finalize(rs, loopErr)
}

// plan produces the session's steps, either from a preloaded plan or
// by asking the planner to decompose the query.
func (s *Supervisor) plan(ctx context.Context, query string) ([]*models.PlanStep, error) {
	if len(s.opts.plan) > 0 {
		if err := planner.Validate(s.opts.plan); err != nil {
			return nil, fmt.Errorf("preloaded plan: %w", err)
		}
		return s.opts.plan, nil
	}
	return s.planner.Decompose(ctx, query)
}

// abortPlanning records a session that never reached execution.
func (s *Supervisor) abortPlanning(session *models.Session, cause error) {
	now := time.Now().UTC()
	s.mu.Lock()
	session.State = models.SessionAborted
	session.AbortReason = cause.Error()
	session.CompletedAt = &now
	s.mu.Unlock()
	s.persistSession(session)
	s.emitTerminal(session)
	s.logger.Log("[supervisor] session %s aborted during planning: %v", session.ID, cause)
}

// finalize settles the session record, appends the terminal event and
// builds the report. It runs after the loop has drained, so no worker
// can append behind the terminal event.
func (s *Supervisor) finalize(rs *runState, loopErr error) (*Report, error) {
	final := models.SessionCompleted
	reason := ""
	switch {
	case loopErr == nil:
		// The loop exits when nothing can progress. Anything still
		// non-terminal at that point can never run.
		for _, step := range rs.session.Steps {
			if !step.Status.Terminal() {
				step.Error = "unresolved at session end"
				s.setStepStatus(step, models.StepFailed)
			}
		}
	case errors.Is(loopErr, errWallClockExhausted):
		final = models.SessionAborted
		reason = errWallClockExhausted.Error()
	case errors.Is(loopErr, context.Canceled) || errors.Is(loopErr, context.DeadlineExceeded):
		final = models.SessionAborted
		reason = "canceled"
	default:
		final = models.SessionAborted
		reason = loopErr.Error()
	}

	now := time.Now().UTC()
	s.mu.Lock()
	rs.session.State = final
	rs.session.AbortReason = reason
	rs.session.CompletedAt = &now
	s.mu.Unlock()
	s.persistSession(rs.session)
	s.emitTerminal(rs.session)

	report := buildReport(rs.session, rs.ledger, s.takeFollowups())
	s.logger.Log("[supervisor] session %s finished %s: %d done, %d failed, %d tokens",
		rs.session.ID, final, report.StepsDone, report.StepsFailed, report.TokensUsed)
	return report, loopErr
}

// runState bundles the per-session machinery the loop operates on.
type runState struct {
	session  *models.Session
	graph    *graph.DependencyGraph
	ledger   *ledger.Ledger
	runner   *agent.Runner
	verifier *verifier.Verifier

	// feedback holds verifier rationale keyed by step ID, consumed by
	// the next dispatch of that step.
	feedback map[string]string
	// pendingRetry marks steps cleared for another attempt at their
	// current tier without a status change.
	pendingRetry map[string]bool
	// draining stops new work while in-flight attempts settle.
	draining bool
}

func (s *Supervisor) newRunState(session *models.Session) (*runState, error) {
	g := graph.New()
	g.SetDebugLog(s.logger.Log)
	if err := g.Build(session.Steps); err != nil {
		return nil, err
	}

	led := ledger.New(session.TokenBudget, session.WallClockBudget)
	if s.opts.actionBudget > 0 {
		led.SetActionBudget(s.opts.actionBudget)
	}

	rs := &runState{
		session:      session,
		graph:        g,
		ledger:       led,
		feedback:     make(map[string]string),
		pendingRetry: make(map[string]bool),
	}

	onPause := s.pauseHook(rs)
	onResume := s.resumeHook(rs)

	verifierOpts := append([]verifier.Option{
		verifier.WithLedger(led, func(w ledger.Warning) {
			s.emitWarning(session.ID, "", w)
		}),
		verifier.WithPauseHooks(onPause, onResume),
	}, s.opts.verifierOpts...)
	rs.verifier = verifier.New(s.backend, s.reviews, verifierOpts...)

	rs.runner = agent.NewRunner(s.backend, s.tools, s.gate, led, s.events, agent.Config{
		MaxIterations:  s.opts.maxIterations,
		AttemptTimeout: s.opts.attemptTimeout,
		Reviews:        s.reviews,
		OnPause:        onPause,
		OnResume:       onResume,
	})
	return rs, nil
}

// pauseHook returns the callback workers invoke when a human review
// starts blocking progress. The first hold pauses the wall clock and
// flips the session to human_paused; nested holds only log.
func (s *Supervisor) pauseHook(rs *runState) func(reviewID, reason string) {
	return func(reviewID, reason string) {
		if s.pauseCtrl.Pause() {
			rs.ledger.PauseClock()
			s.transition(rs.session, models.SessionHumanPaused)
		}
		s.logger.Log("[supervisor] review %s holds the session: %s", reviewID, reason)
	}
}

func (s *Supervisor) resumeHook(rs *runState) func() {
	return func() {
		if s.pauseCtrl.Resume() {
			rs.ledger.ResumeClock()
			s.transition(rs.session, models.SessionExecuting)
		}
	}
}

// transition moves the session to next when the state machine allows
// it, holding the lock through the store write so concurrent
// completions never record an illegal edge.
func (s *Supervisor) transition(session *models.Session, next models.SessionState) {
	s.mu.Lock()
	if session.State == next || !session.State.CanTransitionTo(next) {
		s.mu.Unlock()
		return
	}
	prev := session.State
	session.State = next
	if s.store != nil {
		if err := s.store.UpdateSession(session); err != nil {
			log.Printf("[supervisor] warning: persist session %s: %v", session.ID, err)
		}
	}
	s.mu.Unlock()
	s.logger.Log("[supervisor] session %s: %s -> %s", session.ID, prev, next)
}

// setStepStatus applies a guarded step transition and persists the
// step. Terminal states get a completion timestamp.
func (s *Supervisor) setStepStatus(step *models.PlanStep, next models.StepStatus) {
	if step.Status == next {
		return
	}
	if !step.Status.CanTransitionTo(next) {
		s.logger.Log("[supervisor] refusing step %s transition %s -> %s", step.ID, step.Status, next)
		return
	}
	step.Status = next
	if next.Terminal() {
		now := time.Now().UTC()
		step.CompletedAt = &now
	}
	s.persistStep(step)
}

func (s *Supervisor) persistSession(session *models.Session) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	err := s.store.UpdateSession(session)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[supervisor] warning: persist session %s: %v", session.ID, err)
	}
}

func (s *Supervisor) persistStep(step *models.PlanStep) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateStep(step); err != nil {
		log.Printf("[supervisor] warning: persist step %s: %v", step.ID, err)
	}
}

func (s *Supervisor) persistAttempt(attempt *models.Attempt) {
	if s.store == nil {
		return
	}
	if err := s.store.CreateAttempt(attempt); err != nil {
		log.Printf("[supervisor] warning: persist attempt %d of step %s: %v", attempt.Seq, attempt.StepID, err)
	}
}

// emit appends an event on a background context so records survive
// session cancellation. Failures are logged, never fatal.
func (s *Supervisor) emit(e models.Event) {
	if _, err := s.events.Append(context.Background(), e); err != nil {
		log.Printf("[supervisor] warning: append %s event: %v", e.Kind, err)
	}
}

func (s *Supervisor) emitStepReady(sessionID string, step *models.PlanStep) {
	s.emit(models.Event{
		SessionID: sessionID,
		Kind:      models.EventStepReady,
		Actor:     "supervisor",
		StepID:    step.ID,
		Payload: models.EncodePayload(models.StepReadyPayload{
			Description: step.Description,
			Capability:  step.Capability,
			Tier:        step.Tier,
		}),
	})
}

func (s *Supervisor) emitAttemptOutcome(sessionID string, attempt *models.Attempt) {
	s.emit(models.Event{
		SessionID:  sessionID,
		Kind:       models.EventAttemptOutcome,
		Actor:      "supervisor",
		StepID:     attempt.StepID,
		AttemptSeq: attempt.Seq,
		Payload: models.EncodePayload(models.AttemptOutcomePayload{
			Outcome:    attempt.Outcome,
			Executor:   attempt.Executor,
			Tier:       attempt.Tier,
			TokensUsed: attempt.TokensUsed,
			Error:      attempt.Error,
		}),
	})
}

func (s *Supervisor) emitEscalated(sessionID string, step *models.PlanStep, from models.Tier, reason string) {
	s.emit(models.Event{
		SessionID: sessionID,
		Kind:      models.EventEscalated,
		Actor:     "supervisor",
		StepID:    step.ID,
		Payload: models.EncodePayload(models.EscalatedPayload{
			FromTier: from,
			ToTier:   step.Tier,
			Reason:   reason,
		}),
	})
}

func (s *Supervisor) emitVerified(sessionID string, step *models.PlanStep, v verifier.Verdict) {
	s.emit(models.Event{
		SessionID: sessionID,
		Kind:      models.EventVerified,
		Actor:     "verifier",
		StepID:    step.ID,
		Payload: models.EncodePayload(models.VerifiedPayload{
			Verdict:  string(v.Outcome),
			Verifier: v.DecidedBy,
			Detail:   v.Rationale,
		}),
	})
}

func (s *Supervisor) emitWarning(sessionID, stepID string, w ledger.Warning) {
	s.emit(models.Event{
		SessionID: sessionID,
		Kind:      models.EventBudgetWarning,
		Actor:     "ledger",
		StepID:    stepID,
		Payload: models.EncodePayload(models.BudgetWarningPayload{
			Dimension: string(w.Dimension),
			Used:      w.Used,
			Limit:     w.Limit,
			Fraction:  w.Fraction,
		}),
	})
}

func (s *Supervisor) emitTerminal(session *models.Session) {
	done, failed := 0, 0
	for _, step := range session.Steps {
		switch step.Status {
		case models.StepDone:
			done++
		case models.StepFailed:
			failed++
		}
	}
	s.emit(models.Event{
		SessionID: session.ID,
		Kind:      models.EventSessionTerminal,
		Actor:     "supervisor",
		Payload: models.EncodePayload(models.TerminalPayload{
			State:       session.State,
			Reason:      session.AbortReason,
			StepsDone:   done,
			StepsFailed: failed,
		}),
	})
}
