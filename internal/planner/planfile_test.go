package planner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stewardlab/steward/pkg/models"
)

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan file: %v", err)
	}
	return path
}

func TestLoadPlanFile(t *testing.T) {
	path := writePlanFile(t, `steps:
  - id: fetch
    desc: List the source files
    capability: research
    criteria: file list saved
  - id: analyze
    desc: Analyze the layout for structural problems
    capability: analysis
    tier: heavy
    depends_on: [fetch]
    criteria: report written
    high_sensitivity: true
`)

	steps, err := LoadPlanFile(path)
	if err != nil {
		t.Fatalf("LoadPlanFile failed: %v", err)
	}

	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].ID != "fetch" {
		t.Errorf("step 0 id = %q, want the declared id", steps[0].ID)
	}
	if steps[0].Tier != models.TierReflex {
		t.Errorf("step 0 tier = %v, want heuristic reflex", steps[0].Tier)
	}
	if steps[1].Tier != models.TierHeavy {
		t.Errorf("step 1 tier = %v, want explicit heavy", steps[1].Tier)
	}
	if !steps[1].HighSensitivity {
		t.Error("explicit high_sensitivity flag lost")
	}
	if len(steps[1].DependsOn) != 1 || steps[1].DependsOn[0] != "fetch" {
		t.Errorf("step 1 deps = %v, want [fetch]", steps[1].DependsOn)
	}
}

func TestLoadPlanFile_UnknownTier(t *testing.T) {
	path := writePlanFile(t, `steps:
  - id: a
    desc: Do the thing
    capability: general
    tier: colossal
`)

	_, err := LoadPlanFile(path)
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("expected ErrPlanningFailure for unknown tier, got %v", err)
	}
}

func TestLoadPlanFile_Cycle(t *testing.T) {
	path := writePlanFile(t, `steps:
  - id: root
    desc: Entry step
    capability: general
  - id: a
    desc: First
    capability: general
    depends_on: [b, root]
  - id: b
    desc: Second
    capability: general
    depends_on: [a]
`)

	_, err := LoadPlanFile(path)
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("expected ErrPlanningFailure for cyclic plan, got %v", err)
	}
}

func TestLoadPlanFile_Empty(t *testing.T) {
	path := writePlanFile(t, "steps: []\n")

	_, err := LoadPlanFile(path)
	if !errors.Is(err, ErrPlanningFailure) {
		t.Errorf("expected ErrPlanningFailure for empty plan file, got %v", err)
	}
}

func TestLoadPlanFile_Missing(t *testing.T) {
	_, err := LoadPlanFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}
