package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stewardlab/steward/pkg/models"
)

// plannedStep is the JSON structure the backend returns for one step.
type plannedStep struct {
	Desc       string   `json:"desc"`
	Capability string   `json:"capability"`
	Difficulty float64  `json:"difficulty"`
	DependsOn  []string `json:"depends_on"`
	Criteria   string   `json:"criteria"`
}

// parsePlan extracts steps from a raw decomposition response. It
// prefers a JSON array and falls back to the line format; producing
// zero steps either way is a planning failure, never a silent
// single-step plan. The second return value carries the backend's own
// difficulty estimates keyed by step ID.
func parsePlan(response string) ([]*models.PlanStep, map[string]float64, error) {
	steps, difficulty, jsonErr := parseJSONPlan(response)
	if jsonErr == nil {
		return steps, difficulty, nil
	}

	steps, difficulty, lineErr := parseLinePlan(response)
	if lineErr == nil {
		return steps, difficulty, nil
	}

	return nil, nil, fmt.Errorf("%w: %v; line format: %v", ErrPlanningFailure, jsonErr, lineErr)
}

// parseJSONPlan finds the JSON array in the response and decodes it.
// Prose around the array is tolerated.
func parseJSONPlan(response string) ([]*models.PlanStep, map[string]float64, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, nil, fmt.Errorf("no JSON array found in response (%d chars)", len(response))
	}

	var planned []plannedStep
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if len(planned) == 0 {
		return nil, nil, fmt.Errorf("empty step list returned")
	}

	descToID := make(map[string]string, len(planned))
	difficulty := make(map[string]float64, len(planned))
	steps := make([]*models.PlanStep, len(planned))
	now := time.Now()

	for i, ps := range planned {
		id := uuid.New().String()
		descToID[normalizeDesc(ps.Desc)] = id
		difficulty[id] = ps.Difficulty

		steps[i] = &models.PlanStep{
			ID:                 id,
			Description:        strings.TrimSpace(ps.Desc),
			Capability:         strings.TrimSpace(strings.ToLower(ps.Capability)),
			AcceptanceCriteria: strings.TrimSpace(ps.Criteria),
			Status:             models.StepPending,
			Ordinal:            i,
			CreatedAt:          now,
		}
	}

	for i, ps := range planned {
		for _, ref := range ps.DependsOn {
			depID, err := resolveDep(ref, descToID, steps, i)
			if err != nil {
				return nil, nil, err
			}
			steps[i].DependsOn = append(steps[i].DependsOn, depID)
		}
	}

	return steps, difficulty, nil
}

// resolveDep maps one dependency reference to a step ID. References
// are the referenced step's desc or its 1-based position.
func resolveDep(ref string, descToID map[string]string, steps []*models.PlanStep, from int) (string, error) {
	if id, ok := descToID[normalizeDesc(ref)]; ok {
		return id, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(ref)); err == nil {
		if n >= 1 && n <= len(steps) {
			return steps[n-1].ID, nil
		}
		return "", fmt.Errorf("%w: dependency position %d out of range for step %q",
			ErrPlanningFailure, n, shorten(steps[from].Description, 60))
	}
	return "", fmt.Errorf("%w: unknown dependency %q for step %q",
		ErrPlanningFailure, ref, shorten(steps[from].Description, 60))
}

func normalizeDesc(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Line-format markers, the fallback when the backend ignores the JSON
// instruction.
const (
	lineStep       = "STEP"
	lineCapability = "CAPABILITY:"
	lineCriteria   = "CRITERIA:"
	lineAfter      = "AFTER:"
)

// parseLinePlan parses the STEP/CAPABILITY/CRITERIA/AFTER line format:
//
//	STEP 1: fetch the dataset
//	CAPABILITY: research
//	CRITERIA: raw data saved locally
//	AFTER: none
//
// AFTER takes comma-separated 1-based step numbers.
func parseLinePlan(response string) ([]*models.PlanStep, map[string]float64, error) {
	var steps []*models.PlanStep
	type afterRef struct {
		step *models.PlanStep
		refs []string
	}
	var afters []afterRef
	now := time.Now()

	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, lineStep):
			rest := strings.TrimPrefix(line, lineStep)
			_, desc, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}
			steps = append(steps, &models.PlanStep{
				ID:          uuid.New().String(),
				Description: strings.TrimSpace(desc),
				Status:      models.StepPending,
				Ordinal:     len(steps),
				CreatedAt:   now,
			})

		case strings.HasPrefix(line, lineCapability) && len(steps) > 0:
			cur := steps[len(steps)-1]
			cur.Capability = strings.TrimSpace(strings.ToLower(strings.TrimPrefix(line, lineCapability)))

		case strings.HasPrefix(line, lineCriteria) && len(steps) > 0:
			cur := steps[len(steps)-1]
			cur.AcceptanceCriteria = strings.TrimSpace(strings.TrimPrefix(line, lineCriteria))

		case strings.HasPrefix(line, lineAfter) && len(steps) > 0:
			body := strings.TrimSpace(strings.TrimPrefix(line, lineAfter))
			if body == "" || strings.EqualFold(body, "none") {
				continue
			}
			afters = append(afters, afterRef{
				step: steps[len(steps)-1],
				refs: strings.Split(body, ","),
			})
		}
	}

	if len(steps) == 0 {
		return nil, nil, fmt.Errorf("no STEP lines found")
	}

	for _, a := range afters {
		for _, ref := range a.refs {
			n, err := strconv.Atoi(strings.TrimSpace(ref))
			if err != nil || n < 1 || n > len(steps) {
				return nil, nil, fmt.Errorf("%w: unknown dependency %q for step %q",
					ErrPlanningFailure, strings.TrimSpace(ref), shorten(a.step.Description, 60))
			}
			a.step.DependsOn = append(a.step.DependsOn, steps[n-1].ID)
		}
	}

	// The line format carries no difficulty estimates; every tier
	// comes from the heuristic.
	return steps, map[string]float64{}, nil
}
