// Package router matches plan steps to registered executors and
// bounds how many assignments run at once.
package router

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stewardlab/steward/pkg/models"
)

// Registry manages the set of executors the router can assign work
// to. It provides thread-safe registration, promotion and lookup.
type Registry struct {
	// executors maps executor IDs to their profiles.
	executors map[string]*models.Executor
	// mu protects all fields.
	mu sync.RWMutex
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]*models.Executor),
	}
}

// Register adds or updates an executor profile. Registration time is
// preserved across updates so scheduling ties stay stable.
func (r *Registry) Register(e models.Executor) error {
	if e.ID == "" {
		return fmt.Errorf("executor has no id")
	}
	if len(e.Capabilities) == 0 {
		return fmt.Errorf("executor %s advertises no capabilities", e.ID)
	}
	if !e.Tier.Valid() {
		return fmt.Errorf("executor %s has unknown tier %q", e.ID, e.Tier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.executors[e.ID]; ok {
		e.RegisteredAt = prev.RegisteredAt
	} else if e.RegisteredAt.IsZero() {
		e.RegisteredAt = time.Now()
	}
	r.executors[e.ID] = &e
	return nil
}

// Deregister removes an executor. Returns false if it was not
// registered.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[id]; !ok {
		return false
	}
	delete(r.executors, id)
	return true
}

// Promote clears an executor's experimental flag, making it eligible
// for every capability it advertises.
func (r *Registry) Promote(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executors[id]
	if !ok {
		return fmt.Errorf("unknown executor %q", id)
	}
	e.Experimental = false
	return nil
}

// Get retrieves an executor profile by ID.
func (r *Registry) Get(id string) (models.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[id]
	if !ok {
		return models.Executor{}, false
	}
	return *e, true
}

// All returns every registered executor, ordered by registration time
// then ID so selection ties resolve deterministically.
func (r *Registry) All() []models.Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Executor, 0, len(r.executors))
	for _, e := range r.executors {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of registered executors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// registryFile is the on-disk YAML executor list.
type registryFile struct {
	Executors []models.Executor `yaml:"executors"`
}

// LoadRegistryFile reads executor profiles from a YAML file.
func LoadRegistryFile(path string) ([]models.Executor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var rf registryFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	return rf.Executors, nil
}
