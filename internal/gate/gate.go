// Package gate scores proposed actions and decides whether they run, wait
// for human review, or are refused outright. Decisions are pure values; the
// caller appends the decision event durably before any dispatch, so a crash
// between authorization and execution cannot bypass the audit trail.
package gate

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/pkg/models"
)

const (
	// DefaultThreshold is the minimum aggregate trust that authorizes.
	DefaultThreshold = 0.6
	// DefaultReviewFloor is the score at or below which an action is
	// blocked outright instead of deferred to review.
	DefaultReviewFloor = 0.4
	// riskyFormalityCap bounds the formality of free-form tools whose
	// concrete invocation is not on the safe list.
	riskyFormalityCap = 0.55
	// experimentalFormalityCap bounds the formality of unpromoted
	// forged tools.
	experimentalFormalityCap = 0.5
)

// Outcome classifies the gate's verdict on one proposed action.
type Outcome string

const (
	// OutcomeAuthorize clears the action for dispatch.
	OutcomeAuthorize Outcome = "authorize"
	// OutcomeReview withholds the action until a human approves it.
	OutcomeReview Outcome = "needs_review"
	// OutcomeBlock refuses the action with no human path.
	OutcomeBlock Outcome = "block"
)

// Decision is the gate's full answer for one proposed action.
type Decision struct {
	// Outcome is the verdict class.
	Outcome Outcome
	// Report carries the three scored trust dimensions.
	Report models.TrustReport
	// Score is the weighted-minimum aggregate of the report.
	Score models.TrustScore
	// Reason explains the verdict in one line.
	Reason string
}

// SessionContext is the slice of session state the gate consults.
type SessionContext struct {
	// SessionID identifies the owning session.
	SessionID string
	// StepID identifies the step proposing the action.
	StepID string
	// Executor identifies the agent proposing the action.
	Executor string
	// HighSensitivity marks steps the planner flagged as
	// plan-invalidating.
	HighSensitivity bool
}

// ComplianceFunc is a hard veto consulted before any scoring. Returning
// false blocks the action with no human path.
type ComplianceFunc func(action models.ActionDirective, sctx SessionContext) bool

// ContractSource resolves tool names to their effective contracts. The tool
// registry satisfies it.
type ContractSource interface {
	Contract(name string) (tools.Contract, bool)
}

// Gate evaluates proposed actions against the trust calculus.
type Gate struct {
	contracts   ContractSource
	policy      ScopePolicy
	compliance  ComplianceFunc
	reliability *Tracker
	weights     models.TrustWeights
	threshold   models.TrustScore
	reviewFloor models.TrustScore
	limiter     *rate.Limiter
}

// Option configures a Gate.
type Option func(*Gate)

// WithThresholds overrides the authorization threshold and review floor.
// Out-of-range values, or a floor at or above the threshold, keep the
// defaults.
func WithThresholds(threshold, reviewFloor float64) Option {
	return func(g *Gate) {
		if threshold <= 0 || threshold > 1 || reviewFloor < 0 || reviewFloor >= threshold {
			return
		}
		g.threshold = models.TrustScore(threshold)
		g.reviewFloor = models.TrustScore(reviewFloor)
	}
}

// WithWeights sets the aggregation weights.
func WithWeights(w models.TrustWeights) Option {
	return func(g *Gate) {
		g.weights = w.Normalize()
	}
}

// WithReliability injects a shared reliability tracker (mainly for testing).
func WithReliability(t *Tracker) Option {
	return func(g *Gate) {
		if t != nil {
			g.reliability = t
		}
	}
}

// WithRateLimit bounds authorizations per second with the given burst.
// Exceeding the limit defers the action to review rather than blocking it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Gate) {
		if perSecond > 0 && burst > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New creates a gate over the given contract source, scope policy and
// compliance predicate. A nil compliance predicate always permits.
func New(contracts ContractSource, policy ScopePolicy, compliance ComplianceFunc, opts ...Option) *Gate {
	g := &Gate{
		contracts:   contracts,
		policy:      policy,
		compliance:  compliance,
		reliability: NewTracker(DefaultReliabilityPrior, DefaultReliabilityWindow),
		weights:     models.DefaultTrustWeights(),
		threshold:   DefaultThreshold,
		reviewFloor: DefaultReviewFloor,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reliability returns the tracker so callers can record execution outcomes.
func (g *Gate) Reliability() *Tracker {
	return g.reliability
}

// RecordResult records one execution outcome for reliability scoring.
func (g *Gate) RecordResult(tool string, success bool) {
	g.reliability.Record(tool, success)
}

// Evaluate scores one proposed action and returns the verdict. The only
// side effect is consuming rate-limiter budget on authorization.
func (g *Gate) Evaluate(action models.ActionDirective, sctx SessionContext) Decision {
	if g.compliance != nil && !g.compliance(action, sctx) {
		return Decision{Outcome: OutcomeBlock, Reason: "compliance veto"}
	}

	contract, ok := g.contracts.Contract(action.Tool)
	if !ok {
		return Decision{Outcome: OutcomeBlock, Reason: fmt.Sprintf("unknown tool: %s", action.Tool)}
	}

	if contract.Risk == tools.RiskRisky {
		for _, val := range stringParams(action.Params) {
			if IsDangerous(val) {
				return Decision{
					Outcome: OutcomeBlock,
					Reason:  fmt.Sprintf("destructive command pattern in %s invocation", action.Tool),
				}
			}
		}
	}

	for _, scope := range contract.Scopes {
		if g.policy.Denied(scope) {
			return Decision{
				Outcome: OutcomeBlock,
				Reason:  fmt.Sprintf("scope %s denied by session policy", scope),
			}
		}
	}

	report := models.TrustReport{
		Formality:     g.formality(contract, action.Params),
		ScopeCoverage: g.policy.Coverage(contract.Scopes),
		Reliability:   g.reliability.Score(action.Tool),
	}
	score := report.Aggregate(g.weights)

	switch {
	case score >= g.threshold:
		if g.limiter != nil && !g.limiter.Allow() {
			return Decision{
				Outcome: OutcomeReview, Report: report, Score: score,
				Reason: "authorization rate exceeded, deferred to review",
			}
		}
		return Decision{
			Outcome: OutcomeAuthorize, Report: report, Score: score,
			Reason: fmt.Sprintf("trust %.2f meets threshold %.2f", score, g.threshold),
		}
	case score <= g.reviewFloor:
		return Decision{
			Outcome: OutcomeBlock, Report: report, Score: score,
			Reason: fmt.Sprintf("trust %.2f at or below floor %.2f, weakest dimension %s",
				score, g.reviewFloor, report.Weakest(g.weights)),
		}
	default:
		return Decision{
			Outcome: OutcomeReview, Report: report, Score: score,
			Reason: fmt.Sprintf("trust %.2f below threshold %.2f, weakest dimension %s",
				score, g.threshold, report.Weakest(g.weights)),
		}
	}
}

// formality grades how machine-checkable the invocation is. Contract
// violations floor the score. Safe-listed command lines restore full
// formality for free-form tools; otherwise risky and experimental contracts
// are capped so they cannot authorize without history.
func (g *Gate) formality(contract tools.Contract, params map[string]any) models.TrustScore {
	f := contract.Completeness(params)
	if f == 0 {
		return 0
	}
	if contract.Risk == tools.RiskRisky {
		if allKnownSafe(stringParams(params)) {
			f = 1.0
		} else if f > riskyFormalityCap {
			f = riskyFormalityCap
		}
	}
	if contract.Experimental && f > experimentalFormalityCap {
		f = experimentalFormalityCap
	}
	return f
}

// allKnownSafe reports whether every string parameter is a known-safe
// command line. Directives with no string parameters are not safe-listed.
func allKnownSafe(values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !IsKnownSafe(v) {
			return false
		}
	}
	return true
}

// stringParams collects the string-typed parameter values of a directive.
func stringParams(params map[string]any) []string {
	var out []string
	for _, v := range params {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
