package planner

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/pkg/models"
)

// sensitivityFanOut is the dependent count at which a step is flagged
// regardless of its wording: enough of the plan hangs on it that a
// wrong outcome invalidates wide swaths downstream.
const sensitivityFanOut = 3

// maxProbesPerStep bounds how many probe queries run per flagged step.
const maxProbesPerStep = 2

// decisionKeywords mark steps whose outcome picks between futures
// rather than producing an artifact.
var decisionKeywords = []string{
	"decide",
	"choose",
	"determine",
	"evaluate",
	"assess",
	"select",
	"compare",
	"whether",
	"feasib",
	"viab",
}

// markSensitivity flags steps whose outcome is likely to invalidate
// the rest of the plan: decision-shaped steps with dependents, and any
// step with a wide dependent fan. The scheduler orders flagged steps
// before equal-priority peers.
func markSensitivity(steps []*models.PlanStep) {
	dependents := make(map[string]int)
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			dependents[dep]++
		}
	}

	for _, s := range steps {
		n := dependents[s.ID]
		switch {
		case n >= sensitivityFanOut:
			s.HighSensitivity = true
		case n >= 1 && hasDecisionLanguage(s.Description):
			s.HighSensitivity = true
		}
	}
}

func hasDecisionLanguage(desc string) bool {
	lower := strings.ToLower(desc)
	for _, k := range decisionKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// runProbes verifies the critical assumption behind each flagged step
// with one or two cheap backend queries before execution begins.
// Findings are attached to the step description as context notes so
// the executor sees them. Probes are best effort: failures leave the
// plan unchanged.
func (p *Planner) runProbes(ctx context.Context, steps []*models.PlanStep) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.probeConc)

	for _, s := range steps {
		if !s.HighSensitivity {
			continue
		}
		s := s
		g.Go(func() error {
			queries, err := p.probeQueries(gctx, s)
			if err != nil {
				return nil
			}
			for _, q := range queries {
				comp, err := p.backend.Complete(gctx, backend.Request{
					System: probeSystem,
					Prompt: q,
					Tier:   models.TierReflex,
				})
				if err != nil {
					continue
				}
				finding := strings.TrimSpace(comp.Text)
				if finding == "" {
					continue
				}
				s.Description += fmt.Sprintf("\n\nContext note: %s", shorten(finding, 300))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// probeQueries asks the backend for the verification queries worth
// running before the step. NONE or an empty response means no probe.
func (p *Planner) probeQueries(ctx context.Context, step *models.PlanStep) ([]string, error) {
	comp, err := p.backend.Complete(ctx, backend.Request{
		Prompt: fmt.Sprintf(probeQueryPrompt, step.Description),
		Tier:   models.TierReflex,
	})
	if err != nil {
		return nil, err
	}

	var queries []string
	for _, raw := range strings.Split(comp.Text, "\n") {
		line := strings.TrimSpace(strings.TrimLeft(raw, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, "none") {
			continue
		}
		queries = append(queries, line)
		if len(queries) == maxProbesPerStep {
			break
		}
	}
	return queries, nil
}
