package gate

import (
	"math"
	"strings"
	"testing"

	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/pkg/models"
)

type stubContracts map[string]tools.Contract

func (s stubContracts) Contract(name string) (tools.Contract, bool) {
	c, ok := s[name]
	return c, ok
}

func shellContract() tools.Contract {
	return tools.Contract{
		Name: "shell",
		Params: []tools.Param{
			{Name: "command", Type: "string", Required: true},
			{Name: "timeout_ms", Type: "integer"},
		},
		Scopes: []string{"proc:exec"},
		Risk:   tools.RiskRisky,
	}
}

func fetchContract() tools.Contract {
	return tools.Contract{
		Name: "http_get",
		Params: []tools.Param{
			{Name: "url", Type: "string", Required: true},
		},
		Scopes: []string{"net:http"},
		Risk:   tools.RiskStandard,
	}
}

func shellAction(command string) models.ActionDirective {
	return models.ActionDirective{
		Tool:   "shell",
		Params: map[string]any{"command": command},
	}
}

func TestEvaluateSafeCommandAuthorizes(t *testing.T) {
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil)

	d := g.Evaluate(shellAction("ls -la"), SessionContext{SessionID: "s1", StepID: "step-1"})
	if d.Outcome != OutcomeAuthorize {
		t.Fatalf("Evaluate(ls -la) = %s (%s), want authorize", d.Outcome, d.Reason)
	}
	if d.Report.Formality != 1.0 {
		t.Errorf("safe command formality = %v, want 1.0", d.Report.Formality)
	}
	if math.Abs(float64(d.Score)-0.8) > 1e-9 {
		t.Errorf("Score = %v, want 0.8 (reliability prior)", d.Score)
	}
}

func TestEvaluateFreeFormCommandNeedsReview(t *testing.T) {
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil)

	d := g.Evaluate(shellAction("curl -X POST http://api.internal/launch"), SessionContext{})
	if d.Outcome != OutcomeReview {
		t.Fatalf("Evaluate(free-form) = %s (%s), want needs_review", d.Outcome, d.Reason)
	}
	if float64(d.Report.Formality) > riskyFormalityCap {
		t.Errorf("free-form formality = %v, want at most %v", d.Report.Formality, riskyFormalityCap)
	}
	if !strings.Contains(d.Reason, "below threshold") {
		t.Errorf("Reason = %q, want a below-threshold explanation", d.Reason)
	}
}

func TestEvaluateDestructiveCommandBlocks(t *testing.T) {
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil)

	for _, command := range []string{
		"rm -rf /",
		"sudo git reset --hard",
		"bash -c rm -rf .",
		"dd if=/dev/zero of=/dev/sda",
	} {
		d := g.Evaluate(shellAction(command), SessionContext{})
		if d.Outcome != OutcomeBlock {
			t.Errorf("Evaluate(%q) = %s, want block", command, d.Outcome)
		}
		if !strings.Contains(d.Reason, "destructive") {
			t.Errorf("Evaluate(%q) reason = %q, want destructive pattern", command, d.Reason)
		}
	}
}

func TestEvaluateDeniedScopeBlocks(t *testing.T) {
	contracts := stubContracts{
		"raw_disk": {
			Name:   "raw_disk",
			Scopes: []string{"fs:device"},
			Risk:   tools.RiskStandard,
		},
	}
	g := New(contracts, DefaultScopePolicy(), nil)

	d := g.Evaluate(models.ActionDirective{Tool: "raw_disk"}, SessionContext{})
	if d.Outcome != OutcomeBlock {
		t.Fatalf("Evaluate(denied scope) = %s, want block", d.Outcome)
	}
	if !strings.Contains(d.Reason, "denied by session policy") {
		t.Errorf("Reason = %q, want scope denial", d.Reason)
	}
}

func TestEvaluateContractViolationBlocks(t *testing.T) {
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil)

	// Missing the required command parameter floors formality at zero.
	d := g.Evaluate(models.ActionDirective{Tool: "shell"}, SessionContext{})
	if d.Outcome != OutcomeBlock {
		t.Fatalf("Evaluate(contract violation) = %s, want block", d.Outcome)
	}
	if d.Report.Formality != 0 {
		t.Errorf("Formality = %v, want 0", d.Report.Formality)
	}
	if !strings.Contains(d.Reason, "formality") {
		t.Errorf("Reason = %q, want formality named as weakest", d.Reason)
	}
}

func TestEvaluateUnknownToolBlocks(t *testing.T) {
	g := New(stubContracts{}, DefaultScopePolicy(), nil)

	d := g.Evaluate(models.ActionDirective{Tool: "ghost"}, SessionContext{})
	if d.Outcome != OutcomeBlock {
		t.Fatalf("Evaluate(unknown tool) = %s, want block", d.Outcome)
	}
	if !strings.Contains(d.Reason, "unknown tool") {
		t.Errorf("Reason = %q, want unknown tool", d.Reason)
	}
}

func TestEvaluateComplianceVeto(t *testing.T) {
	veto := func(action models.ActionDirective, sctx SessionContext) bool {
		return !sctx.HighSensitivity
	}
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), veto)

	d := g.Evaluate(shellAction("ls"), SessionContext{HighSensitivity: true})
	if d.Outcome != OutcomeBlock {
		t.Fatalf("Evaluate with veto = %s, want block", d.Outcome)
	}
	if !strings.Contains(d.Reason, "compliance veto") {
		t.Errorf("Reason = %q, want compliance veto", d.Reason)
	}

	if d := g.Evaluate(shellAction("ls"), SessionContext{}); d.Outcome != OutcomeAuthorize {
		t.Errorf("Evaluate without veto = %s, want authorize", d.Outcome)
	}
}

func TestEvaluateExperimentalToolDefersToReview(t *testing.T) {
	forged := tools.Contract{
		Name: "forged",
		Params: []tools.Param{
			{Name: "input", Type: "string", Required: true},
		},
		Scopes:       []string{"fs:read"},
		Risk:         tools.RiskStandard,
		Experimental: true,
	}
	action := models.ActionDirective{Tool: "forged", Params: map[string]any{"input": "x"}}

	g := New(stubContracts{"forged": forged}, DefaultScopePolicy(), nil)
	if d := g.Evaluate(action, SessionContext{}); d.Outcome != OutcomeReview {
		t.Fatalf("Evaluate(experimental) = %s (%s), want needs_review", d.Outcome, d.Reason)
	}

	// Promotion clears the experimental flag and the cap with it.
	forged.Experimental = false
	g = New(stubContracts{"forged": forged}, DefaultScopePolicy(), nil)
	if d := g.Evaluate(action, SessionContext{}); d.Outcome != OutcomeAuthorize {
		t.Errorf("Evaluate(promoted) = %s (%s), want authorize", d.Outcome, d.Reason)
	}
}

func TestEvaluateReliabilityHistory(t *testing.T) {
	action := models.ActionDirective{
		Tool:   "http_get",
		Params: map[string]any{"url": "http://example.com"},
	}

	tracker := NewTracker(0.8, 10)
	g := New(stubContracts{"http_get": fetchContract()}, DefaultScopePolicy(), nil,
		WithReliability(tracker))

	if d := g.Evaluate(action, SessionContext{}); d.Outcome != OutcomeAuthorize {
		t.Fatalf("Evaluate with prior = %s, want authorize", d.Outcome)
	}

	// One success and four failures drop reliability to 0.2.
	tracker.Record("http_get", true)
	for i := 0; i < 4; i++ {
		tracker.Record("http_get", false)
	}

	d := g.Evaluate(action, SessionContext{})
	if d.Outcome != OutcomeBlock {
		t.Fatalf("Evaluate with failing history = %s (%s), want block", d.Outcome, d.Reason)
	}
	if !strings.Contains(d.Reason, "reliability") {
		t.Errorf("Reason = %q, want reliability named as weakest", d.Reason)
	}
}

func TestEvaluateRateLimitDefers(t *testing.T) {
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil,
		WithRateLimit(0.001, 1))

	if d := g.Evaluate(shellAction("ls"), SessionContext{}); d.Outcome != OutcomeAuthorize {
		t.Fatalf("first Evaluate = %s, want authorize", d.Outcome)
	}

	d := g.Evaluate(shellAction("pwd"), SessionContext{})
	if d.Outcome != OutcomeReview {
		t.Fatalf("second Evaluate = %s, want needs_review", d.Outcome)
	}
	if !strings.Contains(d.Reason, "rate") {
		t.Errorf("Reason = %q, want rate limit explanation", d.Reason)
	}
}

func TestWithThresholds(t *testing.T) {
	// A raised threshold pushes a previously authorized score into review.
	g := New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil,
		WithThresholds(0.9, 0.2))
	if d := g.Evaluate(shellAction("ls"), SessionContext{}); d.Outcome != OutcomeReview {
		t.Errorf("Evaluate with raised threshold = %s, want needs_review", d.Outcome)
	}

	// Invalid combinations keep the defaults.
	g = New(stubContracts{"shell": shellContract()}, DefaultScopePolicy(), nil,
		WithThresholds(0.3, 0.5))
	if g.threshold != DefaultThreshold || g.reviewFloor != DefaultReviewFloor {
		t.Errorf("invalid thresholds applied: threshold=%v floor=%v", g.threshold, g.reviewFloor)
	}
}
