package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stewardlab/steward/internal/supervisor"
	"github.com/stewardlab/steward/pkg/models"
)

func TestMaxConcurrentForTier(t *testing.T) {
	tests := []struct {
		name     string
		tier     models.Tier
		expected int
	}{
		{name: "reflex fans out widest", tier: models.TierReflex, expected: 4},
		{name: "light runs three", tier: models.TierLight, expected: 3},
		{name: "standard runs two", tier: models.TierStandard, expected: 2},
		{name: "heavy runs one at a time", tier: models.TierHeavy, expected: 1},
		{name: "unknown tier is conservative", tier: models.Tier("unknown"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maxConcurrentForTier(tt.tier)
			if result != tt.expected {
				t.Errorf("maxConcurrentForTier(%q) = %d, want %d", tt.tier, result, tt.expected)
			}
		})
	}
}

func TestDefaultExecutorsCoverAllTiers(t *testing.T) {
	reg := defaultExecutors()

	if reg.Count() != len(models.Ladder()) {
		t.Fatalf("expected %d executors, got %d", len(models.Ladder()), reg.Count())
	}
	for _, tier := range models.Ladder() {
		e, ok := reg.Get("steward-" + string(tier))
		if !ok {
			t.Fatalf("no executor registered for tier %s", tier)
		}
		if e.Tier != tier {
			t.Errorf("executor %s has tier %s, want %s", e.ID, e.Tier, tier)
		}
		for _, capability := range defaultCapabilities {
			if !e.HasCapability(capability) {
				t.Errorf("executor %s missing capability %s", e.ID, capability)
			}
		}
		if e.MaxConcurrent != maxConcurrentForTier(tier) {
			t.Errorf("executor %s MaxConcurrent = %d, want %d", e.ID, e.MaxConcurrent, maxConcurrentForTier(tier))
		}
	}
}

func TestAttemptSummary(t *testing.T) {
	tests := []struct {
		name     string
		step     supervisor.StepReport
		expected string
	}{
		{
			name:     "no attempts",
			step:     supervisor.StepReport{},
			expected: "",
		},
		{
			name: "single attempt",
			step: supervisor.StepReport{
				Attempts: 1,
				Tiers:    []models.Tier{models.TierLight},
			},
			expected: "(1 attempt, light)",
		},
		{
			name: "same tier retries collapse",
			step: supervisor.StepReport{
				Attempts: 2,
				Tiers:    []models.Tier{models.TierLight, models.TierLight},
			},
			expected: "(2 attempts, light)",
		},
		{
			name: "escalation shows the tier path",
			step: supervisor.StepReport{
				Attempts: 3,
				Tiers:    []models.Tier{models.TierLight, models.TierLight, models.TierStandard},
			},
			expected: "(3 attempts, light → standard)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := attemptSummary(tt.step)
			if result != tt.expected {
				t.Errorf("attemptSummary() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event models.Event
		want  string
	}{
		{
			name: "step ready",
			event: models.Event{
				Kind:   models.EventStepReady,
				StepID: "s1",
				Payload: models.EncodePayload(models.StepReadyPayload{
					Description: "gather sources",
					Capability:  "research",
					Tier:        models.TierLight,
				}),
			},
			want: "s1: gather sources (research, light)",
		},
		{
			name: "action blocked carries the reason",
			event: models.Event{
				Kind:   models.EventActionBlocked,
				StepID: "s2",
				Payload: models.EncodePayload(models.ActionPayload{
					Tool:   "shell",
					Reason: "needs_review: risky invocation",
				}),
			},
			want: "shell on s2: needs_review: risky invocation",
		},
		{
			name: "attempt outcome",
			event: models.Event{
				Kind:       models.EventAttemptOutcome,
				StepID:     "s1",
				AttemptSeq: 2,
				Payload: models.EncodePayload(models.AttemptOutcomePayload{
					Outcome:    models.OutcomeSuccess,
					Tier:       models.TierStandard,
					TokensUsed: 1200,
				}),
			},
			want: "s1 attempt 2: success (standard, 1,200 tokens)",
		},
		{
			name: "escalation shows both tiers",
			event: models.Event{
				Kind:   models.EventEscalated,
				StepID: "s3",
				Payload: models.EncodePayload(models.EscalatedPayload{
					FromTier: models.TierLight,
					ToTier:   models.TierStandard,
					Reason:   "verification_failed",
				}),
			},
			want: "s3: light → standard (verification_failed)",
		},
		{
			name: "budget warning",
			event: models.Event{
				Kind: models.EventBudgetWarning,
				Payload: models.EncodePayload(models.BudgetWarningPayload{
					Dimension: "tokens",
					Used:      164000,
					Limit:     200000,
					Fraction:  0.82,
				}),
			},
			want: "tokens 82% used (164,000 of 200,000)",
		},
		{
			name: "terminal summary",
			event: models.Event{
				Kind: models.EventSessionTerminal,
				Payload: models.EncodePayload(models.TerminalPayload{
					State:     models.SessionCompleted,
					StepsDone: 3,
				}),
			},
			want: "completed, 3 done, 0 failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeEvent(tt.event)
			if got != tt.want {
				t.Errorf("describeEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderEventLineIncludesKind(t *testing.T) {
	e := models.Event{
		Kind:      models.EventStepReady,
		StepID:    "s1",
		Timestamp: time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC),
	}
	line := renderEventLine(e)
	if !strings.Contains(line, "step_ready") {
		t.Errorf("expected kind in line, got %q", line)
	}
	if !strings.Contains(line, "s1") {
		t.Errorf("expected step id in line, got %q", line)
	}
}

func TestClipDetail(t *testing.T) {
	short := "all of it"
	if got := clipDetail(short, 100); got != short {
		t.Errorf("clipDetail(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("x", 150)
	got := clipDetail(long, 100)
	if !strings.HasPrefix(got, strings.Repeat("x", 100)) {
		t.Errorf("clipDetail should keep the first 100 bytes")
	}
	if !strings.Contains(got, "50 more bytes") {
		t.Errorf("clipDetail should note the clipped size, got %q", got)
	}
}

func TestShortSessionID(t *testing.T) {
	if got := shortSessionID("abcdef0123456789"); got != "abcdef01" {
		t.Errorf("shortSessionID() = %q, want %q", got, "abcdef01")
	}
	if got := shortSessionID("abc"); got != "abc" {
		t.Errorf("shortSessionID() = %q, want %q", got, "abc")
	}
}
