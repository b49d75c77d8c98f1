package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.Tier != "light" {
		t.Errorf("expected default tier 'light', got %q", cfg.Defaults.Tier)
	}

	if cfg.Defaults.MaxIterations != 10 {
		t.Errorf("expected default max_iterations 10, got %d", cfg.Defaults.MaxIterations)
	}

	if cfg.Defaults.SameTierRetries != 1 {
		t.Errorf("expected default same_tier_retries 1, got %d", cfg.Defaults.SameTierRetries)
	}

	if cfg.Budgets.Tokens != 200000 {
		t.Errorf("expected default token budget 200000, got %d", cfg.Budgets.Tokens)
	}

	if cfg.Budgets.WallClock != 30*time.Minute {
		t.Errorf("expected default wall clock budget 30m, got %v", cfg.Budgets.WallClock)
	}

	if cfg.Budgets.Actions != 20 {
		t.Errorf("expected default action budget 20, got %d", cfg.Budgets.Actions)
	}

	if cfg.Routing.MaxInFlight != 3 {
		t.Errorf("expected default max_in_flight 3, got %d", cfg.Routing.MaxInFlight)
	}

	if cfg.Review.Timeout != 0 {
		t.Errorf("expected default review timeout 0, got %v", cfg.Review.Timeout)
	}

	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}

	if cfg.Anthropic.MaxTokens != 8192 {
		t.Errorf("expected default max_tokens 8192, got %d", cfg.Anthropic.MaxTokens)
	}
}

func TestLoadFromPath(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  use_bedrock: true
  aws_region: us-west-2
defaults:
  tier: standard
  max_iterations: 6
  attempt_timeout: 3m
  same_tier_retries: 2
budgets:
  tokens: 50000
  wall_clock: 15m
  actions: 10
routing:
  max_in_flight: 5
  per_capability:
    research: 2
review:
  timeout: 45s
tools:
  promoted:
    - csv_probe
tui:
  refresh_rate: 200ms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}

	if !cfg.Anthropic.UseBedrock {
		t.Error("expected use_bedrock to be true")
	}

	if cfg.Anthropic.AWSRegion != "us-west-2" {
		t.Errorf("expected aws_region 'us-west-2', got %q", cfg.Anthropic.AWSRegion)
	}

	if cfg.Defaults.Tier != "standard" {
		t.Errorf("expected tier 'standard', got %q", cfg.Defaults.Tier)
	}

	if cfg.Defaults.MaxIterations != 6 {
		t.Errorf("expected max_iterations 6, got %d", cfg.Defaults.MaxIterations)
	}

	if cfg.Defaults.AttemptTimeout != 3*time.Minute {
		t.Errorf("expected attempt_timeout 3m, got %v", cfg.Defaults.AttemptTimeout)
	}

	if cfg.Defaults.SameTierRetries != 2 {
		t.Errorf("expected same_tier_retries 2, got %d", cfg.Defaults.SameTierRetries)
	}

	if cfg.Budgets.Tokens != 50000 {
		t.Errorf("expected token budget 50000, got %d", cfg.Budgets.Tokens)
	}

	if cfg.Budgets.WallClock != 15*time.Minute {
		t.Errorf("expected wall clock budget 15m, got %v", cfg.Budgets.WallClock)
	}

	if cfg.Budgets.Actions != 10 {
		t.Errorf("expected action budget 10, got %d", cfg.Budgets.Actions)
	}

	if cfg.Routing.MaxInFlight != 5 {
		t.Errorf("expected max_in_flight 5, got %d", cfg.Routing.MaxInFlight)
	}

	if cfg.Routing.PerCapability["research"] != 2 {
		t.Errorf("expected per_capability.research 2, got %d", cfg.Routing.PerCapability["research"])
	}

	if cfg.Review.Timeout != 45*time.Second {
		t.Errorf("expected review timeout 45s, got %v", cfg.Review.Timeout)
	}

	if len(cfg.Tools.Promoted) != 1 || cfg.Tools.Promoted[0] != "csv_probe" {
		t.Errorf("expected promoted tools [csv_probe], got %v", cfg.Tools.Promoted)
	}

	if cfg.TUI.RefreshRate != 200*time.Millisecond {
		t.Errorf("expected refresh rate 200ms, got %v", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPathKeepsDefaultsForMissingKeys(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Only override one section; the rest should stay at defaults.
	configContent := `
budgets:
  tokens: 1000
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Budgets.Tokens != 1000 {
		t.Errorf("expected token budget 1000, got %d", cfg.Budgets.Tokens)
	}

	if cfg.Budgets.Actions != 20 {
		t.Errorf("expected default action budget 20, got %d", cfg.Budgets.Actions)
	}

	if cfg.Defaults.Tier != "light" {
		t.Errorf("expected default tier 'light', got %q", cfg.Defaults.Tier)
	}
}

func TestExpandEnv(t *testing.T) {
	// Set environment variable
	os.Setenv("TEST_VAR", "expanded-value")
	defer os.Unsetenv("TEST_VAR")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	// Test with XDG_CONFIG_HOME set
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/steward"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestLoadTierConfigs(t *testing.T) {
	// Create temporary tier config files
	tmpDir := t.TempDir()

	files := map[string]string{
		"reflex.yaml": `
tier: reflex
max_tokens: 1024
max_iterations: 3
timeout: 1m
`,
		"light.yaml": `
tier: light
model: claude-haiku-4-5-20251001
max_tokens: 4096
max_iterations: 8
timeout: 5m
`,
		"standard.yaml": `
tier: standard
max_tokens: 8192
max_iterations: 10
timeout: 10m
`,
		"heavy.yaml": `
tier: heavy
model: claude-opus-4-1-20250805
max_tokens: 16384
max_iterations: 16
timeout: 20m
`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	tierCfg, err := LoadTierConfigs(tmpDir)
	if err != nil {
		t.Fatalf("LoadTierConfigs failed: %v", err)
	}

	if tierCfg.Reflex == nil {
		t.Fatal("expected reflex config to be non-nil")
	}
	if tierCfg.Reflex.Tier != "reflex" {
		t.Errorf("expected reflex tier 'reflex', got %q", tierCfg.Reflex.Tier)
	}
	if tierCfg.Reflex.MaxTokens != 1024 {
		t.Errorf("expected reflex max_tokens 1024, got %d", tierCfg.Reflex.MaxTokens)
	}
	if tierCfg.Reflex.MaxIterations != 3 {
		t.Errorf("expected reflex max_iterations 3, got %d", tierCfg.Reflex.MaxIterations)
	}
	if tierCfg.Reflex.Timeout != time.Minute {
		t.Errorf("expected reflex timeout 1m, got %v", tierCfg.Reflex.Timeout)
	}
	if tierCfg.Reflex.Model != "" {
		t.Errorf("expected reflex model unset, got %q", tierCfg.Reflex.Model)
	}

	if tierCfg.Light == nil {
		t.Fatal("expected light config to be non-nil")
	}
	if tierCfg.Light.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("expected light model pin, got %q", tierCfg.Light.Model)
	}
	if tierCfg.Light.MaxIterations != 8 {
		t.Errorf("expected light max_iterations 8, got %d", tierCfg.Light.MaxIterations)
	}

	if tierCfg.Standard == nil {
		t.Fatal("expected standard config to be non-nil")
	}
	if tierCfg.Standard.Timeout != 10*time.Minute {
		t.Errorf("expected standard timeout 10m, got %v", tierCfg.Standard.Timeout)
	}

	if tierCfg.Heavy == nil {
		t.Fatal("expected heavy config to be non-nil")
	}
	if tierCfg.Heavy.MaxTokens != 16384 {
		t.Errorf("expected heavy max_tokens 16384, got %d", tierCfg.Heavy.MaxTokens)
	}
}

func TestLoadTierConfigsMissingFile(t *testing.T) {
	tmpDir := t.TempDir()

	// Only reflex.yaml present; light.yaml is missing.
	if err := os.WriteFile(filepath.Join(tmpDir, "reflex.yaml"), []byte("tier: reflex\n"), 0644); err != nil {
		t.Fatalf("failed to write reflex.yaml: %v", err)
	}

	if _, err := LoadTierConfigs(tmpDir); err == nil {
		t.Error("expected error for missing tier file, got nil")
	}
}

func TestDefaultTierConfigs(t *testing.T) {
	tierCfg := DefaultTierConfigs()

	if tierCfg.Reflex == nil || tierCfg.Light == nil || tierCfg.Standard == nil || tierCfg.Heavy == nil {
		t.Fatal("expected all tier configs to be non-nil")
	}

	if tierCfg.Reflex.Timeout != 2*time.Minute {
		t.Errorf("expected default reflex timeout 2m, got %v", tierCfg.Reflex.Timeout)
	}
	if tierCfg.Light.MaxIterations != 8 {
		t.Errorf("expected default light max_iterations 8, got %d", tierCfg.Light.MaxIterations)
	}
	if tierCfg.Standard.MaxTokens != 8192 {
		t.Errorf("expected default standard max_tokens 8192, got %d", tierCfg.Standard.MaxTokens)
	}
	if tierCfg.Heavy.Timeout != 20*time.Minute {
		t.Errorf("expected default heavy timeout 20m, got %v", tierCfg.Heavy.Timeout)
	}

	// Defaults never pin a model; the backend decides per tier.
	if got := tierCfg.Models(); len(got) != 0 {
		t.Errorf("expected no pinned models in defaults, got %v", got)
	}
}

func TestTierConfigsGet(t *testing.T) {
	tierCfg := DefaultTierConfigs()

	tests := []struct {
		tier     string
		expected *TierConfig
	}{
		{"reflex", tierCfg.Reflex},
		{"light", tierCfg.Light},
		{"standard", tierCfg.Standard},
		{"heavy", tierCfg.Heavy},
		{"unknown", tierCfg.Standard}, // Defaults to standard
	}

	for _, tc := range tests {
		got := tierCfg.Get(models.Tier(tc.tier))
		if got != tc.expected {
			t.Errorf("Get(%q) = %v, want %v", tc.tier, got, tc.expected)
		}
	}
}

func TestTierConfigsModels(t *testing.T) {
	tierCfg := DefaultTierConfigs()
	tierCfg.Light.Model = "claude-haiku-4-5-20251001"
	tierCfg.Heavy.Model = "claude-opus-4-1-20250805"

	got := tierCfg.Models()
	if len(got) != 2 {
		t.Fatalf("expected 2 pinned models, got %d", len(got))
	}
	if got[models.TierLight] != "claude-haiku-4-5-20251001" {
		t.Errorf("expected light pin, got %q", got[models.TierLight])
	}
	if got[models.TierHeavy] != "claude-opus-4-1-20250805" {
		t.Errorf("expected heavy pin, got %q", got[models.TierHeavy])
	}
	if _, ok := got[models.TierStandard]; ok {
		t.Error("expected no pin for standard")
	}
}
