package planner

import (
	"errors"
	"strings"
	"testing"
)

func TestParsePlan_ValidJSON(t *testing.T) {
	response := `[
		{
			"desc": "Fetch the dataset",
			"capability": "Research",
			"difficulty": 0.1,
			"depends_on": [],
			"criteria": "raw data saved"
		},
		{
			"desc": "Analyze the dataset",
			"capability": "analysis",
			"difficulty": 0.5,
			"depends_on": ["Fetch the dataset"],
			"criteria": "findings written up"
		}
	]`

	steps, difficulty, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Description != "Fetch the dataset" {
		t.Errorf("step 0 description = %q", steps[0].Description)
	}
	if steps[0].Capability != "research" {
		t.Errorf("step 0 capability = %q, want lowercased %q", steps[0].Capability, "research")
	}
	if len(steps[0].DependsOn) != 0 {
		t.Errorf("step 0 should have no dependencies, got %v", steps[0].DependsOn)
	}
	if len(steps[1].DependsOn) != 1 || steps[1].DependsOn[0] != steps[0].ID {
		t.Errorf("step 1 should depend on step 0's ID, got %v", steps[1].DependsOn)
	}
	if steps[0].Ordinal != 0 || steps[1].Ordinal != 1 {
		t.Errorf("ordinals = %d, %d, want 0, 1", steps[0].Ordinal, steps[1].Ordinal)
	}
	if d := difficulty[steps[1].ID]; d != 0.5 {
		t.Errorf("difficulty for step 1 = %v, want 0.5", d)
	}
}

func TestParsePlan_ExtraTextAroundJSON(t *testing.T) {
	response := `Here is the plan:
[
	{"desc": "Single step", "capability": "general", "depends_on": [], "criteria": "done"}
]
Let me know if you need changes.`

	steps, _, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(steps))
	}
}

func TestParsePlan_IndexDependency(t *testing.T) {
	response := `[
		{"desc": "First", "capability": "general", "depends_on": [], "criteria": "a"},
		{"desc": "Second", "capability": "general", "depends_on": ["1"], "criteria": "b"}
	]`

	steps, _, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(steps[1].DependsOn) != 1 || steps[1].DependsOn[0] != steps[0].ID {
		t.Errorf("positional dependency not resolved: %v", steps[1].DependsOn)
	}
}

func TestParsePlan_UnknownDependency(t *testing.T) {
	response := `[
		{"desc": "Only step", "capability": "general", "depends_on": ["Nonexistent step"], "criteria": "x"}
	]`

	_, _, err := parsePlan(response)
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("error %v should wrap ErrPlanningFailure", err)
	}
	if !strings.Contains(err.Error(), "unknown dependency") {
		t.Errorf("error = %q, should name the unknown dependency", err)
	}
}

func TestParsePlan_PositionOutOfRange(t *testing.T) {
	response := `[
		{"desc": "Only step", "capability": "general", "depends_on": ["7"], "criteria": "x"}
	]`

	_, _, err := parsePlan(response)
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("expected ErrPlanningFailure, got %v", err)
	}
}

func TestParsePlan_LineFormatFallback(t *testing.T) {
	response := `STEP 1: Fetch the dataset
CAPABILITY: research
CRITERIA: raw data saved
AFTER: none
STEP 2: Analyze the dataset
CAPABILITY: analysis
CRITERIA: findings written up
AFTER: 1`

	steps, difficulty, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Description != "Fetch the dataset" {
		t.Errorf("step 0 description = %q", steps[0].Description)
	}
	if steps[0].Capability != "research" {
		t.Errorf("step 0 capability = %q", steps[0].Capability)
	}
	if steps[1].AcceptanceCriteria != "findings written up" {
		t.Errorf("step 1 criteria = %q", steps[1].AcceptanceCriteria)
	}
	if len(steps[1].DependsOn) != 1 || steps[1].DependsOn[0] != steps[0].ID {
		t.Errorf("AFTER reference not resolved: %v", steps[1].DependsOn)
	}
	if len(difficulty) != 0 {
		t.Errorf("line format should carry no difficulty estimates, got %v", difficulty)
	}
}

func TestParsePlan_LineFormatBracketedNumbers(t *testing.T) {
	response := `STEP [1]: Do the thing
CAPABILITY: general
CRITERIA: thing done`

	steps, _, err := parsePlan(response)
	if err != nil {
		t.Fatalf("parsePlan failed: %v", err)
	}
	if len(steps) != 1 || steps[0].Description != "Do the thing" {
		t.Errorf("steps = %+v", steps)
	}
}

func TestParsePlan_LineFormatUnknownAfter(t *testing.T) {
	response := `STEP 1: Only step
CAPABILITY: general
CRITERIA: done
AFTER: 9`

	_, _, err := parsePlan(response)
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("expected ErrPlanningFailure for out-of-range AFTER, got %v", err)
	}
}

func TestParsePlan_NothingParses(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose only", "I would suggest starting with the data."},
		{"empty array", "[]"},
		{"invalid json", "[{not json}]"},
		{"empty response", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parsePlan(tt.response)
			if !errors.Is(err, ErrPlanningFailure) {
				t.Errorf("expected ErrPlanningFailure, got %v", err)
			}
		})
	}
}
