// Package graph provides the dependency graph used to schedule plan steps.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stewardlab/steward/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of plan steps. Steps are
// nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps step ID to the step itself.
	nodes map[string]*models.PlanStep
	// edges maps step ID to IDs of steps it depends on.
	edges map[string][]string
	// done tracks which steps have completed successfully.
	done map[string]bool
	// failed tracks which steps have terminally failed.
	failed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.PlanStep),
		edges:    make(map[string][]string),
		done:     make(map[string]bool),
		failed:   make(map[string]bool),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a plan. Returns an error
// if a cycle is detected or a dependency references an unknown step.
func (g *DependencyGraph) Build(steps []*models.PlanStep) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d steps", len(steps))

	// First pass: register all steps as nodes.
	for _, step := range steps {
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, step := range steps {
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked is the internal implementation that assumes the lock is held.
func (g *DependencyGraph) hasCycleLocked() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int)
	for id := range g.nodes {
		colors[id] = 0
	}

	var hasCycle bool
	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge, cycle found.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				hasCycle = true
				break
			}
		}
	}

	return hasCycle
}

// TopologicalSort returns step IDs in an order where all dependencies
// come before the steps that depend on them.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true

		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	// Visit in ordinal order so ties resolve deterministically.
	for _, id := range g.orderedIDsLocked() {
		visit(id)
	}

	return result, nil
}

// Ready returns the IDs of steps whose dependencies are all done and
// that have not themselves finished or failed. The result is ordered
// for dispatch: high-sensitivity steps first, then plan order.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.PlanStep
	for id, step := range g.nodes {
		if g.done[id] || g.failed[id] {
			continue
		}
		if step.Status.Terminal() {
			continue
		}

		satisfied := true
		for _, depID := range g.edges[id] {
			if !g.done[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, step)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].HighSensitivity != ready[j].HighSensitivity {
			return ready[i].HighSensitivity
		}
		return ready[i].Ordinal < ready[j].Ordinal
	})

	ids := make([]string, len(ready))
	for i, step := range ready {
		ids[i] = step.ID
	}
	g.debugLog("[graph.Ready] %d ready steps: %v", len(ids), ids)
	return ids
}

// MarkDone marks a step as successfully completed. This affects
// subsequent calls to Ready.
func (g *DependencyGraph) MarkDone(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[stepID] = true
}

// MarkFailed marks a step as terminally failed and returns the IDs of
// its transitive dependents, which can never become ready. The caller
// is responsible for recording why each dependent was skipped.
func (g *DependencyGraph) MarkFailed(stepID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failed[stepID] = true

	// Walk the dependent closure breadth-first.
	var blocked []string
	seen := map[string]bool{stepID: true}
	queue := []string{stepID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependentsLocked(current) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if !g.failed[dep] && !g.done[dep] {
				blocked = append(blocked, dep)
				g.failed[dep] = true
			}
			queue = append(queue, dep)
		}
	}

	sort.Slice(blocked, func(i, j int) bool {
		return g.nodes[blocked[i]].Ordinal < g.nodes[blocked[j]].Ordinal
	})
	g.debugLog("[graph.MarkFailed] step %s failed, blocking %v", stepID, blocked)
	return blocked
}

// Step returns the step for a given ID, or nil if not found.
func (g *DependencyGraph) Step(stepID string) *models.PlanStep {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[stepID]
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of steps the given step depends on.
func (g *DependencyGraph) Dependencies(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stepID]
}

// Dependents returns the IDs of steps that depend on the given step.
func (g *DependencyGraph) Dependents(stepID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(stepID)
}

func (g *DependencyGraph) dependentsLocked(stepID string) []string {
	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == stepID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// DoneIDs returns the IDs of all steps marked done.
func (g *DependencyGraph) DoneIDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, ok := range g.done {
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Settled returns true once every step is either done or failed.
func (g *DependencyGraph) Settled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id := range g.nodes {
		if !g.done[id] && !g.failed[id] {
			return false
		}
	}
	return true
}

// orderedIDsLocked returns all node IDs sorted by plan ordinal.
func (g *DependencyGraph) orderedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return g.nodes[ids[i]].Ordinal < g.nodes[ids[j]].Ordinal
	})
	return ids
}
