package state

import (
	"context"
	"testing"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

func TestSessionRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	session := &models.Session{
		ID:              "sess-001",
		Goal:            "summarize the quarterly reports",
		State:           models.SessionPlanning,
		TokenBudget:     10000,
		WallClockBudget: 30 * time.Minute,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := db.GetSession("sess-001")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSession returned nil")
	}
	if got.Goal != session.Goal || got.State != session.State {
		t.Errorf("session mismatch: got %+v, want %+v", got, session)
	}
	if got.TokenBudget != 10000 || got.WallClockBudget != 30*time.Minute {
		t.Errorf("budget mismatch: tokens=%d wall=%v", got.TokenBudget, got.WallClockBudget)
	}

	// Missing sessions come back nil without error.
	if missing, err := db.GetSession("nope"); err != nil || missing != nil {
		t.Errorf("GetSession(nope) = %v, %v, want nil, nil", missing, err)
	}
}

func TestUpdateSessionState(t *testing.T) {
	db := setupTestDB(t)

	session := &models.Session{
		ID:        "sess-upd",
		Goal:      "goal",
		State:     models.SessionExecuting,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	session.State = models.SessionAborted
	session.AbortReason = "budget exhausted"
	session.CompletedAt = &now
	if err := db.UpdateSession(session); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err := db.GetSession("sess-upd")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.State != models.SessionAborted {
		t.Errorf("State = %q, want aborted", got.State)
	}
	if got.AbortReason != "budget exhausted" {
		t.Errorf("AbortReason = %q", got.AbortReason)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}
}

func TestListInterruptedSessions(t *testing.T) {
	db := setupTestDB(t)

	states := map[string]models.SessionState{
		"done":    models.SessionCompleted,
		"aborted": models.SessionAborted,
		"running": models.SessionExecuting,
		"paused":  models.SessionHumanPaused,
	}
	base := time.Now().UTC()
	i := 0
	for id, st := range states {
		s := &models.Session{ID: id, Goal: "g", State: st, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := db.CreateSession(s); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		i++
	}

	interrupted, err := db.ListInterruptedSessions()
	if err != nil {
		t.Fatalf("ListInterruptedSessions failed: %v", err)
	}
	if len(interrupted) != 2 {
		t.Fatalf("got %d interrupted sessions, want 2", len(interrupted))
	}
	for _, s := range interrupted {
		if s.State.Terminal() {
			t.Errorf("session %s has terminal state %s", s.ID, s.State)
		}
	}
}

func TestStepRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	step := &models.PlanStep{
		ID:                 "step-1",
		Description:        "gather inputs",
		Capability:         "research",
		DependsOn:          []string{"step-0"},
		Tier:               models.TierLight,
		Status:             models.StepPending,
		AcceptanceCriteria: "all sources listed",
		HighSensitivity:    true,
		Ordinal:            1,
		CreatedAt:          time.Now().UTC().Truncate(time.Second),
	}
	if err := db.CreateStep("sess-1", step); err != nil {
		t.Fatalf("CreateStep failed: %v", err)
	}

	got, err := db.GetStep("step-1")
	if err != nil {
		t.Fatalf("GetStep failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetStep returned nil")
	}
	if got.Capability != "research" || !got.HighSensitivity {
		t.Errorf("step mismatch: %+v", got)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "step-0" {
		t.Errorf("DependsOn = %v, want [step-0]", got.DependsOn)
	}

	// Mutate and persist.
	got.Status = models.StepDone
	got.Tier = models.TierStandard
	got.FinalAnswer = "the answer"
	if err := db.UpdateStep(got); err != nil {
		t.Fatalf("UpdateStep failed: %v", err)
	}
	again, _ := db.GetStep("step-1")
	if again.Status != models.StepDone || again.Tier != models.TierStandard {
		t.Errorf("update not persisted: %+v", again)
	}
	if again.FinalAnswer != "the answer" {
		t.Errorf("FinalAnswer = %q", again.FinalAnswer)
	}
}

func TestListStepsOrderedByOrdinal(t *testing.T) {
	db := setupTestDB(t)

	// Insert out of order.
	for _, ord := range []int{2, 0, 1} {
		step := &models.PlanStep{
			ID:          "step-" + string(rune('a'+ord)),
			Description: "d",
			Capability:  "c",
			Tier:        models.TierLight,
			Status:      models.StepPending,
			Ordinal:     ord,
			CreatedAt:   time.Now().UTC(),
		}
		if err := db.CreateStep("sess-1", step); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
	}

	steps, err := db.ListSteps("sess-1")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i, step := range steps {
		if step.Ordinal != i {
			t.Errorf("steps[%d].Ordinal = %d, want %d", i, step.Ordinal, i)
		}
	}
}

func TestAttemptsAppendInOrder(t *testing.T) {
	db := setupTestDB(t)

	started := time.Now().UTC().Truncate(time.Second)
	outcomes := []models.AttemptOutcome{
		models.OutcomeToolFailure,
		models.OutcomeToolFailure,
		models.OutcomeSuccess,
	}
	for i, outcome := range outcomes {
		a := &models.Attempt{
			Seq:        i + 1,
			StepID:     "step-1",
			Executor:   "exec-a",
			Tier:       models.TierLight,
			Outcome:    outcome,
			TokensUsed: int64(100 * (i + 1)),
			StartedAt:  started,
			EndedAt:    started.Add(time.Duration(i+1) * time.Second),
		}
		if err := db.CreateAttempt(a); err != nil {
			t.Fatalf("CreateAttempt %d failed: %v", i+1, err)
		}
	}

	attempts, err := db.ListAttempts("step-1")
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(attempts) != 3 {
		t.Fatalf("got %d attempts, want 3", len(attempts))
	}
	for i, a := range attempts {
		if a.Seq != i+1 {
			t.Errorf("attempts[%d].Seq = %d, want %d", i, a.Seq, i+1)
		}
		if a.Outcome != outcomes[i] {
			t.Errorf("attempts[%d].Outcome = %q, want %q", i, a.Outcome, outcomes[i])
		}
	}

	// An attempt may not reuse a (step, seq) pair.
	dup := &models.Attempt{Seq: 2, StepID: "step-1", Executor: "x", Tier: models.TierLight,
		Outcome: models.OutcomeSuccess, StartedAt: started, EndedAt: started}
	if err := db.CreateAttempt(dup); err == nil {
		t.Error("duplicate attempt seq should be rejected")
	}
}

func TestLoadSessionAssemblesStepsAndAttempts(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	session := &models.Session{ID: "sess-load", Goal: "g", State: models.SessionExecuting, CreatedAt: now}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	step := &models.PlanStep{ID: "s1", Description: "d", Capability: "c",
		Tier: models.TierLight, Status: models.StepRunning, CreatedAt: now}
	if err := db.CreateStep("sess-load", step); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	attempt := &models.Attempt{Seq: 1, StepID: "s1", Executor: "e", Tier: models.TierLight,
		Outcome: models.OutcomeTimeout, StartedAt: now, EndedAt: now}
	if err := db.CreateAttempt(attempt); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	loaded, err := db.LoadSession("sess-load")
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if len(loaded.Steps) != 1 {
		t.Fatalf("loaded %d steps, want 1", len(loaded.Steps))
	}
	if len(loaded.Steps[0].Attempts) != 1 {
		t.Fatalf("loaded %d attempts, want 1", len(loaded.Steps[0].Attempts))
	}
	if loaded.Steps[0].Attempts[0].Outcome != models.OutcomeTimeout {
		t.Errorf("attempt outcome = %q", loaded.Steps[0].Attempts[0].Outcome)
	}
}

func TestEventLogRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		e := models.Event{
			SessionID: "sess-ev",
			Seq:       int64(i),
			Kind:      models.EventStepReady,
			Actor:     "supervisor",
			StepID:    "s1",
			Payload:   models.EncodePayload(map[string]int{"n": i}),
			Timestamp: time.Now().UTC(),
		}
		if err := db.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent %d failed: %v", i, err)
		}
	}

	events, err := db.ListEvents("sess-ev")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}

	last, err := db.LastEventSeq("sess-ev")
	if err != nil {
		t.Fatalf("LastEventSeq failed: %v", err)
	}
	if last != 3 {
		t.Errorf("LastEventSeq = %d, want 3", last)
	}

	// Unknown sessions report zero.
	if last, _ := db.LastEventSeq("nope"); last != 0 {
		t.Errorf("LastEventSeq(nope) = %d, want 0", last)
	}
}

func TestEventLogRejectsDuplicateSeq(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	e := models.Event{
		SessionID: "sess-dup",
		Seq:       1,
		Kind:      models.EventVerified,
		Actor:     "verifier",
		Timestamp: time.Now().UTC(),
	}
	if err := db.AppendEvent(ctx, e); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if err := db.AppendEvent(ctx, e); err == nil {
		t.Error("duplicate (session, seq) should be rejected")
	}
}
