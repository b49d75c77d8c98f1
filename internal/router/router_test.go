package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

func planStep(id, capability string, tier models.Tier) *models.PlanStep {
	return &models.PlanStep{
		ID:          id,
		Description: "step " + id,
		Capability:  capability,
		Tier:        tier,
		Status:      models.StepReady,
	}
}

func mustRegister(t *testing.T, reg *Registry, execs ...models.Executor) {
	t.Helper()
	for _, e := range execs {
		if err := reg.Register(e); err != nil {
			t.Fatalf("register %s: %v", e.ID, err)
		}
	}
}

// waitQueued polls until the router has n parked requests.
func waitQueued(t *testing.T, rt *Router, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rt.Queued() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued requests, have %d", n, rt.Queued())
}

func TestAcquireSelectsCapableExecutor(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		executorProfile("researcher-1", models.TierStandard, "research"),
		executorProfile("writer-1", models.TierStandard, "writing"),
	)
	rt := New(reg, Ceilings{})

	a, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if a.Executor.ID != "researcher-1" {
		t.Errorf("expected researcher-1, got %s", a.Executor.ID)
	}
	if a.StepID != "s1" || a.Capability != "research" {
		t.Errorf("unexpected assignment: %+v", a)
	}
	if rt.InFlight() != 1 {
		t.Errorf("expected 1 in flight, got %d", rt.InFlight())
	}

	rt.Release(a)
	if rt.InFlight() != 0 {
		t.Errorf("expected 0 in flight after release, got %d", rt.InFlight())
	}
}

func TestAcquirePrefersExactCapability(t *testing.T) {
	reg := NewRegistry()
	generalist := executorProfile("generalist", models.TierLight, "research", "analysis", "writing")
	specialist := executorProfile("specialist", models.TierHeavy, "research")
	mustRegister(t, reg, generalist, specialist)
	rt := New(reg, Ceilings{})

	// The generalist is cheaper, but the single-tag specialist wins.
	a, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if a.Executor.ID != "specialist" {
		t.Errorf("expected exact-match specialist, got %s", a.Executor.ID)
	}
}

func TestAcquirePicksLowestSufficientTier(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		executorProfile("heavy-1", models.TierHeavy, "research"),
		executorProfile("light-1", models.TierLight, "research"),
		executorProfile("standard-1", models.TierStandard, "research"),
	)
	rt := New(reg, Ceilings{})

	a, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierStandard))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if a.Executor.ID != "standard-1" {
		t.Errorf("expected cheapest sufficient executor standard-1, got %s", a.Executor.ID)
	}
}

func TestAcquireRoutingFailure(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, executorProfile("light-1", models.TierLight, "research"))
	rt := New(reg, Ceilings{})

	// Unknown capability.
	_, err := rt.Acquire(context.Background(), planStep("s1", "welding", models.TierLight))
	if !errors.Is(err, ErrRoutingFailure) {
		t.Fatalf("expected ErrRoutingFailure, got %v", err)
	}

	// Known capability, but no executor at a sufficient tier.
	_, err = rt.Acquire(context.Background(), planStep("s2", "research", models.TierHeavy))
	if !errors.Is(err, ErrRoutingFailure) {
		t.Fatalf("expected ErrRoutingFailure for insufficient tier, got %v", err)
	}

	if rt.InFlight() != 0 || rt.Queued() != 0 {
		t.Errorf("routing failure should not consume slots: inflight=%d queued=%d", rt.InFlight(), rt.Queued())
	}
}

func TestAcquireExperimentalOnlyForUncoveredCapability(t *testing.T) {
	reg := NewRegistry()
	standing := executorProfile("standing-1", models.TierHeavy, "research")
	forged := executorProfile("forged-1", models.TierLight, "research", "scraping")
	forged.Experimental = true
	mustRegister(t, reg, standing, forged)
	rt := New(reg, Ceilings{})

	// A standing executor covers research, so the experimental one
	// is passed over even though it is cheaper.
	a, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if a.Executor.ID != "standing-1" {
		t.Errorf("expected standing-1, got %s", a.Executor.ID)
	}

	// Nothing standing covers scraping, so the experimental executor
	// is eligible there.
	b, err := rt.Acquire(context.Background(), planStep("s2", "scraping", models.TierLight))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if b.Executor.ID != "forged-1" {
		t.Errorf("expected forged-1 for uncovered capability, got %s", b.Executor.ID)
	}
}

func TestPromoteMakesExecutorStanding(t *testing.T) {
	reg := NewRegistry()
	standing := executorProfile("standing-1", models.TierHeavy, "research")
	forged := executorProfile("forged-1", models.TierLight, "research")
	forged.Experimental = true
	mustRegister(t, reg, standing, forged)
	rt := New(reg, Ceilings{})

	if err := reg.Promote("forged-1"); err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	// Once promoted it competes normally and wins on tier.
	a, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if a.Executor.ID != "forged-1" {
		t.Errorf("expected promoted forged-1 to win on tier, got %s", a.Executor.ID)
	}
}

func TestAcquireQueuesWhenExecutorSaturated(t *testing.T) {
	reg := NewRegistry()
	e := executorProfile("solo-1", models.TierStandard, "research")
	e.MaxConcurrent = 1
	mustRegister(t, reg, e)
	rt := New(reg, Ceilings{})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	granted := make(chan *Assignment, 1)
	go func() {
		a, err := rt.Acquire(context.Background(), planStep("s2", "research", models.TierLight))
		if err != nil {
			t.Errorf("queued acquire failed: %v", err)
		}
		granted <- a
	}()

	waitQueued(t, rt, 1)
	select {
	case <-granted:
		t.Fatal("second acquire should not be granted while slot is held")
	default:
	}

	rt.Release(first)

	select {
	case a := <-granted:
		if a.StepID != "s2" {
			t.Errorf("expected s2 granted, got %s", a.StepID)
		}
		rt.Release(a)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued acquire to be granted")
	}
}

func TestQueueOffersHighSensitivityFirst(t *testing.T) {
	reg := NewRegistry()
	e := executorProfile("solo-1", models.TierStandard, "research")
	e.MaxConcurrent = 1
	mustRegister(t, reg, e)
	rt := New(reg, Ceilings{})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	plain := planStep("s2", "research", models.TierLight)
	plain.Ordinal = 1
	hot := planStep("s3", "research", models.TierLight)
	hot.Ordinal = 5
	hot.HighSensitivity = true

	grants := make(chan *Assignment, 2)
	acquire := func(step *models.PlanStep) {
		a, err := rt.Acquire(context.Background(), step)
		if err != nil {
			t.Errorf("queued acquire %s failed: %v", step.ID, err)
			return
		}
		grants <- a
	}

	// Park the plain step first so arrival order alone would favor it.
	go acquire(plain)
	waitQueued(t, rt, 1)
	go acquire(hot)
	waitQueued(t, rt, 2)

	rt.Release(first)

	select {
	case a := <-grants:
		if a.StepID != "s3" {
			t.Errorf("expected high-sensitivity s3 granted first, got %s", a.StepID)
		}
		rt.Release(a)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first grant")
	}

	select {
	case a := <-grants:
		if a.StepID != "s2" {
			t.Errorf("expected s2 granted second, got %s", a.StepID)
		}
		rt.Release(a)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second grant")
	}
}

func TestGlobalCeiling(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg,
		executorProfile("researcher-1", models.TierStandard, "research"),
		executorProfile("writer-1", models.TierStandard, "writing"),
	)
	rt := New(reg, Ceilings{Global: 1})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rt.Acquire(ctx, planStep("s2", "writing", models.TierLight)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while global ceiling held, got %v", err)
	}

	rt.Release(first)
	a, err := rt.Acquire(context.Background(), planStep("s3", "writing", models.TierLight))
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	rt.Release(a)
}

func TestPerCapabilityCeiling(t *testing.T) {
	reg := NewRegistry()
	mustRegister(t, reg, executorProfile("generalist", models.TierStandard, "research", "writing"))
	rt := New(reg, Ceilings{PerCapability: map[string]int{"research": 1}})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// Research is capped, writing is not.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := rt.Acquire(ctx, planStep("s2", "research", models.TierLight)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected research acquire to park, got %v", err)
	}

	b, err := rt.Acquire(context.Background(), planStep("s3", "writing", models.TierLight))
	if err != nil {
		t.Fatalf("writing acquire failed: %v", err)
	}
	rt.Release(b)
	rt.Release(first)
}

func TestAcquireCanceledWhileQueued(t *testing.T) {
	reg := NewRegistry()
	e := executorProfile("solo-1", models.TierStandard, "research")
	e.MaxConcurrent = 1
	mustRegister(t, reg, e)
	rt := New(reg, Ceilings{})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Acquire(ctx, planStep("s2", "research", models.TierLight))
		errCh <- err
	}()

	waitQueued(t, rt, 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for canceled acquire to return")
	}

	if rt.Queued() != 0 {
		t.Errorf("expected empty queue after cancellation, got %d", rt.Queued())
	}
	rt.Release(first)
}

func TestReconcileFailsStrandedWaiters(t *testing.T) {
	reg := NewRegistry()
	e := executorProfile("solo-1", models.TierStandard, "research")
	e.MaxConcurrent = 1
	mustRegister(t, reg, e)
	rt := New(reg, Ceilings{})

	first, err := rt.Acquire(context.Background(), planStep("s1", "research", models.TierLight))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := rt.Acquire(context.Background(), planStep("s2", "research", models.TierLight))
		errCh <- err
	}()

	waitQueued(t, rt, 1)
	reg.Deregister("solo-1")
	rt.Reconcile()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrRoutingFailure) {
			t.Errorf("expected ErrRoutingFailure for stranded waiter, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stranded waiter to fail")
	}
	rt.Release(first)
}
