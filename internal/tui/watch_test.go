package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/pkg/models"
)

func stepReadyEvent(sessionID, stepID, description string, tier models.Tier) models.Event {
	return models.Event{
		SessionID: sessionID,
		Kind:      models.EventStepReady,
		Actor:     "supervisor",
		StepID:    stepID,
		Payload: models.EncodePayload(models.StepReadyPayload{
			Description: description,
			Capability:  "general",
			Tier:        tier,
		}),
		Timestamp: time.Now(),
	}
}

func attemptEvent(sessionID, stepID string, seq int, outcome models.AttemptOutcome, tokens int64) models.Event {
	return models.Event{
		SessionID:  sessionID,
		Kind:       models.EventAttemptOutcome,
		Actor:      "supervisor",
		StepID:     stepID,
		AttemptSeq: seq,
		Payload: models.EncodePayload(models.AttemptOutcomePayload{
			Outcome:    outcome,
			Executor:   "exec-1",
			Tier:       models.TierLight,
			TokensUsed: tokens,
		}),
		Timestamp: time.Now(),
	}
}

func verifiedEvent(sessionID, stepID, verdict, detail string) models.Event {
	return models.Event{
		SessionID: sessionID,
		Kind:      models.EventVerified,
		Actor:     "verifier",
		StepID:    stepID,
		Payload: models.EncodePayload(models.VerifiedPayload{
			Verdict:  verdict,
			Verifier: "verifier",
			Detail:   detail,
		}),
		Timestamp: time.Now(),
	}
}

func send(t *testing.T, app *WatchApp, msg tea.Msg) {
	t.Helper()
	model, _ := app.Update(msg)
	if model != app {
		t.Fatal("Update returned a different model")
	}
}

func TestWatchTracksStepLifecycle(t *testing.T) {
	app := NewWatch(WatchConfig{SessionQuery: "compare quarterly revenue"})

	send(t, app, EventMsg{Event: stepReadyEvent("sess-1", "step-1", "pull the numbers", models.TierLight)})

	row, ok := app.rows["step-1"]
	if !ok {
		t.Fatal("expected a row for step-1")
	}
	if row.description != "pull the numbers" {
		t.Errorf("expected description from payload, got %q", row.description)
	}
	if !row.active {
		t.Error("expected step to be active after step_ready")
	}
	if app.phase != "executing" {
		t.Errorf("expected phase 'executing', got %q", app.phase)
	}

	send(t, app, EventMsg{Event: attemptEvent("sess-1", "step-1", 1, models.OutcomeSuccess, 120)})

	if row.attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", row.attempts)
	}
	if row.note != "verifying" {
		t.Errorf("expected note 'verifying', got %q", row.note)
	}
	if app.tokensUsed != 120 {
		t.Errorf("expected 120 tokens, got %d", app.tokensUsed)
	}

	send(t, app, EventMsg{Event: verifiedEvent("sess-1", "step-1", string(models.VerdictPass), "looks right")})

	if !row.done {
		t.Error("expected step done after a passing verdict")
	}
	if row.active {
		t.Error("expected step inactive after a passing verdict")
	}

	view := app.View()
	if !strings.Contains(view, "step-1") {
		t.Error("expected the view to list step-1")
	}
	if !strings.Contains(view, "pull the numbers") {
		t.Error("expected the view to show the step description")
	}
}

func TestWatchFailedVerdictShowsRework(t *testing.T) {
	app := NewWatch(WatchConfig{})

	send(t, app, EventMsg{Event: stepReadyEvent("sess-1", "step-1", "summarize", models.TierLight)})
	send(t, app, EventMsg{Event: attemptEvent("sess-1", "step-1", 1, models.OutcomeSuccess, 50)})
	send(t, app, EventMsg{Event: verifiedEvent("sess-1", "step-1", string(models.VerdictFail), "missing the second half")})

	row := app.rows["step-1"]
	if row.done {
		t.Error("expected step not done after a failing verdict")
	}
	if !strings.Contains(row.note, "rework") {
		t.Errorf("expected a rework note, got %q", row.note)
	}
}

func TestWatchEscalationUpdatesTier(t *testing.T) {
	app := NewWatch(WatchConfig{})

	send(t, app, EventMsg{Event: stepReadyEvent("sess-1", "step-1", "analyze", models.TierLight)})
	send(t, app, EventMsg{Event: models.Event{
		SessionID: "sess-1",
		Kind:      models.EventEscalated,
		Actor:     "supervisor",
		StepID:    "step-1",
		Payload: models.EncodePayload(models.EscalatedPayload{
			FromTier: models.TierLight,
			ToTier:   models.TierStandard,
			Reason:   "verification failed",
		}),
		Timestamp: time.Now(),
	}})

	row := app.rows["step-1"]
	if row.tier != models.TierStandard {
		t.Errorf("expected tier standard after escalation, got %s", row.tier)
	}
	if !strings.Contains(row.note, "escalated") {
		t.Errorf("expected an escalation note, got %q", row.note)
	}
}

func TestWatchBudgetWarningBanner(t *testing.T) {
	app := NewWatch(WatchConfig{})

	send(t, app, EventMsg{Event: models.Event{
		SessionID: "sess-1",
		Kind:      models.EventBudgetWarning,
		Actor:     "ledger",
		Payload: models.EncodePayload(models.BudgetWarningPayload{
			Dimension: "tokens",
			Used:      820,
			Limit:     1000,
			Fraction:  0.82,
		}),
		Timestamp: time.Now(),
	}})

	if !strings.Contains(app.View(), "tokens budget 82% used") {
		t.Errorf("expected budget banner in view, got:\n%s", app.View())
	}
}

func TestWatchTerminalEventFinishesView(t *testing.T) {
	app := NewWatch(WatchConfig{})

	send(t, app, EventMsg{Event: stepReadyEvent("sess-1", "step-1", "a", models.TierLight)})
	send(t, app, EventMsg{Event: stepReadyEvent("sess-1", "step-2", "b", models.TierLight)})
	send(t, app, EventMsg{Event: verifiedEvent("sess-1", "step-1", string(models.VerdictPass), "")})
	send(t, app, EventMsg{Event: models.Event{
		SessionID: "sess-1",
		Kind:      models.EventSessionTerminal,
		Actor:     "supervisor",
		Payload: models.EncodePayload(models.TerminalPayload{
			State:       models.SessionCompleted,
			StepsDone:   1,
			StepsFailed: 1,
		}),
		Timestamp: time.Now(),
	}})

	if !app.done {
		t.Error("expected the view to be done after session_terminal")
	}
	if !app.rows["step-2"].failed {
		t.Error("expected the unfinished step marked failed at session end")
	}

	// The spinner stops: a tick while done schedules no follow-up.
	_, cmd := app.Update(tickMsg(time.Now()))
	if cmd != nil {
		t.Error("expected no tick command after the session finished")
	}

	view := app.View()
	if !strings.Contains(view, "1 done, 1 failed") {
		t.Errorf("expected terminal counts in view, got:\n%s", view)
	}
	if !strings.Contains(view, "Press q to exit") {
		t.Error("expected exit hint after the session finished")
	}
}

func TestWatchReviewFlow(t *testing.T) {
	var decided *review.Decision
	app := NewWatch(WatchConfig{
		OnDecision: func(d review.Decision) { decided = &d },
	})

	send(t, app, ReviewRequestMsg{Review: review.Review{
		ID:      "rev-1",
		StepID:  "step-1",
		Kind:    review.KindAction,
		Summary: "allow shell command?",
		Detail:  "rm -- staging.tmp",
	}})

	if !app.prompt.Active() {
		t.Fatal("expected the review prompt to be active")
	}
	if !strings.Contains(app.View(), "allow shell command?") {
		t.Error("expected the prompt view to show the summary")
	}
	if app.phase != "waiting on review" {
		t.Errorf("expected phase 'waiting on review', got %q", app.phase)
	}

	send(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})

	if decided == nil {
		t.Fatal("expected a decision after pressing y")
	}
	if !decided.Approved {
		t.Error("expected an approval")
	}
	if decided.ReviewID != "rev-1" {
		t.Errorf("expected decision for rev-1, got %q", decided.ReviewID)
	}
	if app.prompt.Active() {
		t.Error("expected the prompt to deactivate after the decision")
	}
	if app.phase != "executing" {
		t.Errorf("expected phase back to 'executing', got %q", app.phase)
	}
}

func TestWatchQuitKey(t *testing.T) {
	app := NewWatch(WatchConfig{})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if !app.quitting {
		t.Error("expected the app to be quitting")
	}
}

func TestWatchSetPlanPrePopulatesRows(t *testing.T) {
	app := NewWatch(WatchConfig{})
	app.SetPlan([]*models.PlanStep{
		{ID: "step-1", Description: "first", Tier: models.TierLight},
		{ID: "step-2", Description: "second", Tier: models.TierStandard},
	})

	if len(app.order) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(app.order))
	}
	if app.rows["step-2"].tier != models.TierStandard {
		t.Errorf("expected step-2 at tier standard, got %s", app.rows["step-2"].tier)
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{9999, "9999"},
		{10000, "10.0k"},
		{31400, "31.4k"},
	}

	for _, tt := range tests {
		if got := formatTokens(tt.n); got != tt.expected {
			t.Errorf("formatTokens(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}
