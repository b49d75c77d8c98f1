package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/stewardlab/steward/pkg/models"
)

// ErrRoutingFailure indicates no registered executor can serve a
// step. It is a structural condition, not an attempt failure.
var ErrRoutingFailure = errors.New("routing failure")

// errSaturated is returned internally when capable executors exist
// but every one is at a concurrency ceiling.
var errSaturated = errors.New("all capable executors saturated")

// Ceilings bounds concurrent assignments. Zero means unlimited.
type Ceilings struct {
	// Global caps total in-flight assignments across all executors.
	Global int
	// PerCapability caps in-flight assignments per capability tag.
	PerCapability map[string]int
}

// Assignment records a granted slot. The caller must Release it when
// the attempt finishes, whatever the outcome.
type Assignment struct {
	StepID     string
	Capability string
	Executor   models.Executor
	AcquiredAt time.Time
}

// waiter is a parked Acquire call.
type waiter struct {
	step *models.PlanStep
	ch   chan grant
	seq  int
}

type grant struct {
	assignment *Assignment
	err        error
}

// Router assigns plan steps to executors. Selection prefers exact
// capability matches and the cheapest sufficient tier; saturated
// requests queue until a slot frees.
type Router struct {
	registry *Registry
	ceilings Ceilings

	mu      sync.Mutex
	total   int
	perCap  map[string]int
	perExec map[string]int
	waiters []*waiter
	seq     int

	debugLog func(format string, args ...any)
}

// New creates a router over the given registry.
func New(registry *Registry, ceilings Ceilings) *Router {
	return &Router{
		registry: registry,
		ceilings: ceilings,
		perCap:   make(map[string]int),
		perExec:  make(map[string]int),
		debugLog: func(format string, args ...any) {},
	}
}

// SetDebugLog enables internal debug logging.
func (rt *Router) SetDebugLog(enabled bool) {
	if enabled {
		rt.debugLog = log.Printf
	} else {
		rt.debugLog = func(format string, args ...any) {}
	}
}

// Acquire selects an executor for the step and claims a slot on it.
// When every capable executor is at a ceiling the call parks until a
// slot frees or ctx is done. When no registered executor can serve
// the step at all, it fails fast with ErrRoutingFailure.
func (rt *Router) Acquire(ctx context.Context, step *models.PlanStep) (*Assignment, error) {
	rt.mu.Lock()

	exec, err := rt.pickLocked(step)
	if err == nil {
		a := rt.assignLocked(exec, step)
		rt.mu.Unlock()
		return a, nil
	}
	if errors.Is(err, ErrRoutingFailure) {
		rt.mu.Unlock()
		return nil, err
	}

	w := &waiter{step: step, ch: make(chan grant, 1), seq: rt.seq}
	rt.seq++
	rt.waiters = append(rt.waiters, w)
	rt.debugLog("[router] step %s waiting for %s slot (%d queued)", step.ID, step.Capability, len(rt.waiters))
	rt.mu.Unlock()

	select {
	case g := <-w.ch:
		return g.assignment, g.err
	case <-ctx.Done():
		rt.abandon(w)
		return nil, ctx.Err()
	}
}

// Release frees the assignment's slot and hands it to the most
// deserving queued request, if any.
func (rt *Router) Release(a *Assignment) {
	if a == nil {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.total--
	rt.perCap[a.Capability]--
	rt.perExec[a.Executor.ID]--
	rt.grantWaitersLocked()
}

// Reconcile re-evaluates queued requests against the current
// registry. Call it after registry changes so waiters stranded by a
// deregistration fail instead of hanging, and waiters unblocked by a
// promotion get their slot.
func (rt *Router) Reconcile() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.grantWaitersLocked()
}

// InFlight returns the number of live assignments.
func (rt *Router) InFlight() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.total
}

// Queued returns the number of parked Acquire calls.
func (rt *Router) Queued() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.waiters)
}

// pickLocked selects an executor for the step. Exact single-tag
// advertisements beat supersets; within the preferred pool the lowest
// sufficient tier wins, with registration order breaking ties.
// Experimental executors are considered only for capabilities no
// standing executor advertises.
func (rt *Router) pickLocked(step *models.PlanStep) (*models.Executor, error) {
	all := rt.registry.All()

	standing := false
	for i := range all {
		if !all[i].Experimental && all[i].HasCapability(step.Capability) {
			standing = true
			break
		}
	}

	var capable []models.Executor
	for _, e := range all {
		if !e.HasCapability(step.Capability) {
			continue
		}
		if e.Experimental && standing {
			continue
		}
		if e.Tier.Rank() < step.Tier.Rank() {
			continue
		}
		capable = append(capable, e)
	}
	if len(capable) == 0 {
		return nil, fmt.Errorf("%w: no executor serves %q at tier %s or above", ErrRoutingFailure, step.Capability, step.Tier)
	}

	pool := capable
	var exact []models.Executor
	for _, e := range capable {
		if e.ExactCapability(step.Capability) {
			exact = append(exact, e)
		}
	}
	if len(exact) > 0 {
		pool = exact
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Tier.Rank() < pool[j].Tier.Rank()
	})

	for i := range pool {
		if rt.admissibleLocked(&pool[i], step.Capability) {
			e := pool[i]
			return &e, nil
		}
	}
	return nil, errSaturated
}

// admissibleLocked reports whether assigning the executor one more
// step stays within every ceiling.
func (rt *Router) admissibleLocked(e *models.Executor, capability string) bool {
	if rt.ceilings.Global > 0 && rt.total >= rt.ceilings.Global {
		return false
	}
	if limit, ok := rt.ceilings.PerCapability[capability]; ok && limit > 0 && rt.perCap[capability] >= limit {
		return false
	}
	if e.MaxConcurrent > 0 && rt.perExec[e.ID] >= e.MaxConcurrent {
		return false
	}
	return true
}

func (rt *Router) assignLocked(e *models.Executor, step *models.PlanStep) *Assignment {
	rt.total++
	rt.perCap[step.Capability]++
	rt.perExec[e.ID]++
	rt.debugLog("[router] step %s assigned to %s (%d in flight)", step.ID, e.ID, rt.total)
	return &Assignment{
		StepID:     step.ID,
		Capability: step.Capability,
		Executor:   *e,
		AcquiredAt: time.Now(),
	}
}

// grantWaitersLocked drains the queue as far as capacity allows.
// High-sensitivity steps are offered slots first; among equals the
// earlier-created, earlier-arrived step wins. Waiters whose executors
// have since deregistered are failed rather than left hanging.
func (rt *Router) grantWaitersLocked() {
	for {
		order := make([]*waiter, len(rt.waiters))
		copy(order, rt.waiters)
		sort.SliceStable(order, func(i, j int) bool {
			if order[i].step.HighSensitivity != order[j].step.HighSensitivity {
				return order[i].step.HighSensitivity
			}
			if order[i].step.Ordinal != order[j].step.Ordinal {
				return order[i].step.Ordinal < order[j].step.Ordinal
			}
			return order[i].seq < order[j].seq
		})

		progress := false
		for _, w := range order {
			exec, err := rt.pickLocked(w.step)
			switch {
			case err == nil:
				a := rt.assignLocked(exec, w.step)
				rt.removeWaiterLocked(w)
				w.ch <- grant{assignment: a}
				progress = true
			case errors.Is(err, ErrRoutingFailure):
				rt.removeWaiterLocked(w)
				w.ch <- grant{err: err}
				progress = true
			default:
				continue
			}
			break
		}
		if !progress {
			return
		}
	}
}

func (rt *Router) removeWaiterLocked(w *waiter) {
	for i, cand := range rt.waiters {
		if cand == w {
			rt.waiters = append(rt.waiters[:i], rt.waiters[i+1:]...)
			return
		}
	}
}

// abandon withdraws a waiter after its context ended. A grant may
// have raced the cancellation; if so the slot goes back to the pool.
func (rt *Router) abandon(w *waiter) {
	rt.mu.Lock()
	rt.removeWaiterLocked(w)
	rt.mu.Unlock()

	select {
	case g := <-w.ch:
		if g.assignment != nil {
			rt.Release(g.assignment)
		}
	default:
	}
}
