// Package planner turns a request into a validated plan: steps with
// capability tags, dependencies forming a DAG, acceptance criteria and
// an assigned capability tier.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/graph"
	"github.com/stewardlab/steward/pkg/models"
)

// ErrPlanningFailure indicates decomposition produced no usable plan.
// The session cannot proceed past it.
var ErrPlanningFailure = errors.New("planning failure")

// DefaultProbeConcurrency bounds parallel probe execution.
const DefaultProbeConcurrency = 2

// Planner decomposes requests through the reasoning backend.
type Planner struct {
	backend   backend.Backend
	tier      models.Tier
	probes    bool
	probeConc int
}

// Option configures a Planner.
type Option func(*Planner)

// WithPlanningTier sets the tier used for decomposition inference
// itself. Default is the standard tier.
func WithPlanningTier(t models.Tier) Option {
	return func(p *Planner) {
		if t.Valid() {
			p.tier = t
		}
	}
}

// WithProbes enables sensitivity probes with the given concurrency
// limit. Zero or negative keeps the default limit.
func WithProbes(concurrency int) Option {
	return func(p *Planner) {
		p.probes = true
		if concurrency > 0 {
			p.probeConc = concurrency
		}
	}
}

// New creates a planner over the given backend.
func New(b backend.Backend, opts ...Option) *Planner {
	p := &Planner{
		backend:   b,
		tier:      models.TierStandard,
		probeConc: DefaultProbeConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decompose produces a validated plan for the request. Steps come back
// pending, tiered, ordered by ordinal, with high-sensitivity flags set.
func (p *Planner) Decompose(ctx context.Context, query string) ([]*models.PlanStep, error) {
	comp, err := p.backend.Complete(ctx, backend.Request{
		Prompt: fmt.Sprintf(decompositionPrompt, query),
		Tier:   p.tier,
	})
	if err != nil {
		return nil, fmt.Errorf("decomposition inference: %w", err)
	}
	return p.accept(ctx, comp.Text)
}

// Refine re-decomposes an existing plan with execution feedback, for
// example a verifier rationale that invalidated an assumption.
func (p *Planner) Refine(ctx context.Context, steps []*models.PlanStep, feedback string) ([]*models.PlanStep, error) {
	comp, err := p.backend.Complete(ctx, backend.Request{
		Prompt: fmt.Sprintf(refinePrompt, renderPlan(steps), feedback),
		Tier:   p.tier,
	})
	if err != nil {
		return nil, fmt.Errorf("refinement inference: %w", err)
	}
	return p.accept(ctx, comp.Text)
}

// accept runs the shared acceptance pipeline on one raw decomposition
// response: parse, validate, tier, flag sensitivity, probe.
func (p *Planner) accept(ctx context.Context, response string) ([]*models.PlanStep, error) {
	steps, difficulty, err := parsePlan(response)
	if err != nil {
		return nil, err
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}

	assignTiers(steps, difficulty)
	markSensitivity(steps)

	if p.probes {
		p.runProbes(ctx, steps)
	}
	return steps, nil
}

// Validate checks a plan against the acceptance rules: at least one
// step, every step tagged with a capability, at least one entry step
// with no dependencies, all dependencies resolvable and acyclic.
func Validate(steps []*models.PlanStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: decomposition produced no steps", ErrPlanningFailure)
	}

	entry := false
	for _, s := range steps {
		if strings.TrimSpace(s.Capability) == "" {
			return fmt.Errorf("%w: step %q has no capability tag", ErrPlanningFailure, shorten(s.Description, 60))
		}
		if len(s.DependsOn) == 0 {
			entry = true
		}
	}
	if !entry {
		return fmt.Errorf("%w: every step has dependencies, nothing can start", ErrPlanningFailure)
	}

	g := graph.New()
	if err := g.Build(steps); err != nil {
		return fmt.Errorf("%w: %w", ErrPlanningFailure, err)
	}
	return nil
}

// renderPlan formats steps for re-posing to the backend, one numbered
// line per step with its dependency positions.
func renderPlan(steps []*models.PlanStep) string {
	pos := make(map[string]int, len(steps))
	for i, s := range steps {
		pos[s.ID] = i + 1
	}

	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. [%s, %s] %s", i+1, s.Capability, s.Tier, s.Description)
		if len(s.DependsOn) > 0 {
			refs := make([]string, 0, len(s.DependsOn))
			for _, dep := range s.DependsOn {
				if n, ok := pos[dep]; ok {
					refs = append(refs, fmt.Sprintf("%d", n))
				}
			}
			fmt.Fprintf(&b, " (after %s)", strings.Join(refs, ", "))
		}
		if s.Status.Terminal() {
			fmt.Fprintf(&b, " [%s]", s.Status)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
