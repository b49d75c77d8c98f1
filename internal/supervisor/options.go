package supervisor

import (
	"time"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/bus"
	"github.com/stewardlab/steward/internal/gate"
	"github.com/stewardlab/steward/internal/planner"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/router"
	"github.com/stewardlab/steward/internal/state"
	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/internal/verifier"
	"github.com/stewardlab/steward/pkg/models"
)

const (
	// DefaultActionBudget caps tool invocations per session.
	DefaultActionBudget = 20
	// DefaultPollInterval is the scheduling loop's idle tick.
	DefaultPollInterval = 100 * time.Millisecond
)

// RequiredConfig contains the minimal required configuration for a
// Supervisor. Both fields are required and have no defaults.
type RequiredConfig struct {
	// Backend is the reasoning backend attempts and adjudications run
	// against.
	Backend backend.Backend
	// Tools dispatches authorized actions.
	Tools *tools.Dispatcher
}

// Option configures a Supervisor. Use With* functions to create
// Options.
type Option func(*supervisorOptions)

// supervisorOptions holds all optional configuration.
type supervisorOptions struct {
	store           state.Store
	registry        *router.Registry
	ceilings        router.Ceilings
	events          *bus.Bus
	reviews         *review.Manager
	logger          *DebugLogger
	tokenBudget     int64
	wallBudget      time.Duration
	actionBudget    int64
	scopePolicy     gate.ScopePolicy
	compliance      gate.ComplianceFunc
	gateOpts        []gate.Option
	plannerOpts     []planner.Option
	verifierOpts    []verifier.Option
	maxIterations   int
	attemptTimeout  time.Duration
	pollInterval    time.Duration
	sameTierRetries int
	plan            []*models.PlanStep
}

func defaultOptions() *supervisorOptions {
	return &supervisorOptions{
		scopePolicy:     gate.DefaultScopePolicy(),
		actionBudget:    DefaultActionBudget,
		pollInterval:    DefaultPollInterval,
		sameTierRetries: DefaultSameTierRetries,
	}
}

// WithStore persists sessions, steps, attempts and events to the
// given store. Without one the session runs in memory only.
func WithStore(s state.Store) Option {
	return func(o *supervisorOptions) { o.store = s }
}

// WithRegistry sets the executor registry steps are routed against.
func WithRegistry(r *router.Registry) Option {
	return func(o *supervisorOptions) { o.registry = r }
}

// WithCeilings bounds concurrent assignments globally and per
// capability.
func WithCeilings(c router.Ceilings) Option {
	return func(o *supervisorOptions) { o.ceilings = c }
}

// WithBus shares an externally owned event bus, letting a TUI or
// mirror subscribe before the session starts.
func WithBus(b *bus.Bus) Option {
	return func(o *supervisorOptions) { o.events = b }
}

// WithBudget sets the session token and wall-clock budgets. Zero in
// either dimension means unlimited.
func WithBudget(tokens int64, wall time.Duration) Option {
	return func(o *supervisorOptions) {
		o.tokenBudget = tokens
		o.wallBudget = wall
	}
}

// WithActionBudget caps tool invocations per session. Zero or
// negative means unlimited.
func WithActionBudget(n int64) Option {
	return func(o *supervisorOptions) { o.actionBudget = n }
}

// WithReviewChannel routes gate reviews and abstained verdicts to the
// given manager. Without one, reviews reject and abstentions fail.
func WithReviewChannel(m *review.Manager) Option {
	return func(o *supervisorOptions) { o.reviews = m }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *supervisorOptions) { o.logger = l }
}

// WithScopePolicy replaces the default scope allow/deny policy.
func WithScopePolicy(p gate.ScopePolicy) Option {
	return func(o *supervisorOptions) { o.scopePolicy = p }
}

// WithCompliance sets the hard veto consulted before any trust
// scoring.
func WithCompliance(fn gate.ComplianceFunc) Option {
	return func(o *supervisorOptions) { o.compliance = fn }
}

// WithGateOptions forwards options to the assurance gate.
func WithGateOptions(opts ...gate.Option) Option {
	return func(o *supervisorOptions) { o.gateOpts = append(o.gateOpts, opts...) }
}

// WithPlannerOptions forwards options to the planner.
func WithPlannerOptions(opts ...planner.Option) Option {
	return func(o *supervisorOptions) { o.plannerOpts = append(o.plannerOpts, opts...) }
}

// WithVerifierOptions forwards options to the verifier.
func WithVerifierOptions(opts ...verifier.Option) Option {
	return func(o *supervisorOptions) { o.verifierOpts = append(o.verifierOpts, opts...) }
}

// WithMaxIterations caps reasoning turns per attempt.
func WithMaxIterations(n int) Option {
	return func(o *supervisorOptions) { o.maxIterations = n }
}

// WithAttemptTimeout bounds one attempt's wall time. Zero disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *supervisorOptions) { o.attemptTimeout = d }
}

// WithPollInterval sets the scheduling loop's idle tick (mainly for
// testing).
func WithPollInterval(d time.Duration) Option {
	return func(o *supervisorOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithSameTierRetries sets how many extra attempts a step gets at its
// current tier before escalating. Negative values escalate on the
// first failure.
func WithSameTierRetries(n int) Option {
	return func(o *supervisorOptions) {
		if n < 0 {
			n = 0
		}
		o.sameTierRetries = n
	}
}

// WithPlan supplies a prebuilt plan, skipping decomposition. The plan
// is still validated before execution.
func WithPlan(steps []*models.PlanStep) Option {
	return func(o *supervisorOptions) { o.plan = steps }
}
