package planner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/stewardlab/steward/pkg/models"
)

// planFile is the on-disk YAML plan format, for sessions that run a
// hand-written plan instead of decomposing a query.
type planFile struct {
	Steps []planFileStep `yaml:"steps"`
}

type planFileStep struct {
	ID              string   `yaml:"id"`
	Desc            string   `yaml:"desc"`
	Capability      string   `yaml:"capability"`
	Tier            string   `yaml:"tier"`
	DependsOn       []string `yaml:"depends_on"`
	Criteria        string   `yaml:"criteria"`
	HighSensitivity bool     `yaml:"high_sensitivity"`
}

// LoadPlanFile reads a YAML plan and validates it with the same rules
// as backend decomposition. Steps without an explicit tier get the
// heuristic assignment; dependencies reference step ids.
func LoadPlanFile(path string) ([]*models.PlanStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}
	if len(pf.Steps) == 0 {
		return nil, fmt.Errorf("%w: plan file %s has no steps", ErrPlanningFailure, path)
	}

	now := time.Now()
	steps := make([]*models.PlanStep, len(pf.Steps))
	for i, fs := range pf.Steps {
		id := strings.TrimSpace(fs.ID)
		if id == "" {
			id = uuid.New().String()
		}
		steps[i] = &models.PlanStep{
			ID:                 id,
			Description:        strings.TrimSpace(fs.Desc),
			Capability:         strings.TrimSpace(strings.ToLower(fs.Capability)),
			DependsOn:          fs.DependsOn,
			AcceptanceCriteria: strings.TrimSpace(fs.Criteria),
			HighSensitivity:    fs.HighSensitivity,
			Status:             models.StepPending,
			Ordinal:            i,
			CreatedAt:          now,
		}

		switch tier := models.Tier(strings.TrimSpace(strings.ToLower(fs.Tier))); {
		case fs.Tier == "":
			steps[i].Tier = tierFor(estimateDifficulty(steps[i]))
		case tier.Valid():
			steps[i].Tier = tier
		default:
			return nil, fmt.Errorf("%w: unknown tier %q for step %q", ErrPlanningFailure, fs.Tier, id)
		}
	}

	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}
