package gate

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestScopePolicyDenied(t *testing.T) {
	policy := ScopePolicy{
		Allow: []string{"fs:read", "fs:write"},
		Deny:  []string{"fs:device", "sys:admin"},
	}

	tests := []struct {
		name  string
		scope string
		want  bool
	}{
		{"exact deny", "fs:device", true},
		{"deny covers narrower scope", "sys:admin:reboot", true},
		{"allowed scope", "fs:read", false},
		{"unmentioned scope", "net:http", false},
		{"prefix without boundary", "fs:devicex", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Denied(tt.scope); got != tt.want {
				t.Errorf("Denied(%q) = %v, want %v", tt.scope, got, tt.want)
			}
		})
	}
}

func TestScopePolicyCoverage(t *testing.T) {
	policy := DefaultScopePolicy()

	tests := []struct {
		name   string
		scopes []string
		want   float64
	}{
		{"fully covered", []string{"fs:read", "fs:write"}, 1.0},
		{"deny list counts as covered", []string{"fs:device"}, 1.0},
		{"narrower scopes covered by prefix", []string{"fs:write:/tmp/out"}, 1.0},
		{"half covered", []string{"fs:read", "exotic:thing"}, 0.5},
		{"uncovered", []string{"exotic:thing"}, 0},
		{"unknown surface", nil, coverageUnknownSurface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := float64(policy.Coverage(tt.scopes))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Coverage(%v) = %v, want %v", tt.scopes, got, tt.want)
			}
		})
	}
}

func TestLoadScopePolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `scopes:
  allow:
    - vcs:commit
  deny:
    - net:http
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	policy, err := LoadScopePolicy(path)
	if err != nil {
		t.Fatalf("LoadScopePolicy() error = %v", err)
	}

	if !policy.Covered("vcs:commit") {
		t.Error("loaded policy should cover vcs:commit")
	}
	if !policy.Denied("net:http") {
		t.Error("loaded policy should deny net:http")
	}
	// Defaults are merged, not replaced.
	if !policy.Covered("fs:read") {
		t.Error("loaded policy should keep default coverage of fs:read")
	}

	if _, err := LoadScopePolicy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadScopePolicy() with a missing file should fail")
	}
}
