package gate

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/stewardlab/steward/pkg/models"
)

// coverageUnknownSurface is the scope coverage granted to a tool that
// declares no scopes at all. The surface is unknown, so the score lands in
// the review band instead of authorizing or hard-blocking outright.
const coverageUnknownSurface = 0.5

// ScopePolicy is the session's explicit allow/deny list over side-effect
// scopes such as "fs:write" or "proc:exec". A scope pattern covers itself
// and any more specific scope under it: "fs:write" covers
// "fs:write:/tmp/out".
type ScopePolicy struct {
	Allow []string `yaml:"allow" json:"allow"`
	Deny  []string `yaml:"deny" json:"deny"`
}

// policyFile is the on-disk YAML layout for a scope policy.
type policyFile struct {
	Scopes ScopePolicy `yaml:"scopes"`
}

// DefaultScopePolicy covers the standing tool surface. Reads, workspace
// writes, process execution and plain HTTP are named explicitly; raw device
// and administrative scopes are denied.
func DefaultScopePolicy() ScopePolicy {
	return ScopePolicy{
		Allow: []string{"fs:read", "fs:write", "proc:exec", "net:http"},
		Deny:  []string{"fs:device", "net:raw", "sys:admin"},
	}
}

// LoadScopePolicy reads a YAML policy file and merges it over the defaults.
func LoadScopePolicy(path string) (ScopePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScopePolicy{}, fmt.Errorf("read scope policy: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return ScopePolicy{}, fmt.Errorf("parse scope policy %s: %w", path, err)
	}

	policy := DefaultScopePolicy()
	policy.Allow = append(policy.Allow, file.Scopes.Allow...)
	policy.Deny = append(policy.Deny, file.Scopes.Deny...)
	return policy, nil
}

// Denied reports whether the policy explicitly denies a scope.
func (p ScopePolicy) Denied(scope string) bool {
	for _, pattern := range p.Deny {
		if scopeMatches(pattern, scope) {
			return true
		}
	}
	return false
}

// Covered reports whether the policy mentions a scope at all, on either
// list. An uncovered scope is one the session never thought about.
func (p ScopePolicy) Covered(scope string) bool {
	if p.Denied(scope) {
		return true
	}
	for _, pattern := range p.Allow {
		if scopeMatches(pattern, scope) {
			return true
		}
	}
	return false
}

// Coverage grades the fraction of the declared scopes the policy covers.
func (p ScopePolicy) Coverage(scopes []string) models.TrustScore {
	if len(scopes) == 0 {
		return coverageUnknownSurface
	}
	covered := 0
	for _, scope := range scopes {
		if p.Covered(scope) {
			covered++
		}
	}
	return models.TrustScore(float64(covered) / float64(len(scopes)))
}

// scopeMatches reports whether pattern covers scope, either exactly or as a
// prefix at a ":" boundary.
func scopeMatches(pattern, scope string) bool {
	if pattern == scope {
		return true
	}
	return strings.HasPrefix(scope, pattern+":")
}
