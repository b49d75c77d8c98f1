package planner

import (
	"strings"

	"github.com/stewardlab/steward/pkg/models"
)

// Difficulty thresholds for the tier ladder. A step runs on the
// cheapest tier whose band contains its difficulty; escalation is the
// only later path upward.
const (
	reflexCutoff   = 0.15
	lightCutoff    = 0.3
	standardCutoff = 0.7
)

// trivialKeywords mark mechanical work suited to the cheapest tiers.
var trivialKeywords = []string{
	"list",
	"read",
	"fetch",
	"look up",
	"lookup",
	"count",
	"copy",
	"rename",
	"extract",
	"typo",
	"format",
}

// demandingKeywords mark open-ended work that needs a capable tier.
var demandingKeywords = []string{
	"design",
	"architect",
	"investigate",
	"root cause",
	"debug",
	"security",
	"migration",
	"optimize",
	"concurren",
	"distributed",
	"refactor",
	"prove",
}

// estimateDifficulty scores a step in [0, 1] from keyword and
// structure signals. Used when the backend supplied no usable
// estimate of its own.
func estimateDifficulty(step *models.PlanStep) float64 {
	d := 0.4
	lower := strings.ToLower(step.Description)

	for _, k := range demandingKeywords {
		if strings.Contains(lower, k) {
			d += 0.35
			break
		}
	}
	for _, k := range trivialKeywords {
		if strings.Contains(lower, k) {
			d -= 0.25
			break
		}
	}

	// Structure signals: terse steps tend to be mechanical, sprawling
	// descriptions and wide dependency fans tend not to be.
	if len(step.Description) < 60 {
		d -= 0.05
	}
	if len(step.Description) > 240 {
		d += 0.1
	}
	if len(step.DependsOn) >= 3 {
		d += 0.1
	}

	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}

// tierFor maps a difficulty estimate to the cheapest sufficient tier.
func tierFor(difficulty float64) models.Tier {
	switch {
	case difficulty < reflexCutoff:
		return models.TierReflex
	case difficulty < lightCutoff:
		return models.TierLight
	case difficulty < standardCutoff:
		return models.TierStandard
	default:
		return models.TierHeavy
	}
}

// assignTiers sets each step's tier from the backend's difficulty
// estimate when it is in (0, 1], falling back to the heuristic.
func assignTiers(steps []*models.PlanStep, difficulty map[string]float64) {
	for _, s := range steps {
		d, ok := difficulty[s.ID]
		if !ok || d <= 0 || d > 1 {
			d = estimateDifficulty(s)
		}
		s.Tier = tierFor(d)
	}
}
