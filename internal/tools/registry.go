// Package tools defines the tool contracts executors may invoke, a registry
// that tracks the standing and experimental tool sets, and the dispatcher
// that executes authorized action directives.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is a named capability an attempt can invoke through the dispatcher.
type Tool interface {
	// Contract returns the tool's declared interface.
	Contract() Contract
	// Invoke executes the tool with validated parameters and returns its
	// output. Errors describe execution failures, not contract violations.
	Invoke(ctx context.Context, params map[string]any) (string, error)
}

// Registry holds the available tools. Tools registered with an experimental
// contract stay out of the standing set until promoted.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	promoted map[string]bool
	debugLog func(format string, args ...interface{})
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		promoted: make(map[string]bool),
	}
}

// SetDebugLog sets a debug logging function for registry changes.
func (r *Registry) SetDebugLog(fn func(format string, args ...interface{})) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debugLog = fn
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.debugLog != nil {
		r.debugLog(format, args...)
	}
}

// Register adds a tool under its contract name. Registering a name twice is
// an error; forged tools must pick fresh names.
func (r *Registry) Register(t Tool) error {
	c := t.Contract()
	if c.Name == "" {
		return fmt.Errorf("tool contract has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[c.Name]; exists {
		return fmt.Errorf("tool %s already registered", c.Name)
	}
	r.tools[c.Name] = t
	r.logf("registry: registered tool %s (experimental=%v)", c.Name, c.Experimental)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Contract returns the effective contract for name, with the experimental
// flag cleared if the tool has been promoted.
func (r *Registry) Contract(name string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Contract{}, false
	}
	c := t.Contract()
	if r.promoted[name] {
		c.Experimental = false
	}
	return c, true
}

// Contracts returns the effective contracts of all registered tools, sorted
// by name.
func (r *Registry) Contracts() []Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Contract, 0, len(r.tools))
	for name, t := range r.tools {
		c := t.Contract()
		if r.promoted[name] {
			c.Experimental = false
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Promote moves an experimental tool into the standing set. Promoting a tool
// that is not experimental is an error.
func (r *Registry) Promote(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %s not registered", name)
	}
	if !t.Contract().Experimental {
		return fmt.Errorf("tool %s is not experimental", name)
	}
	if r.promoted[name] {
		return fmt.Errorf("tool %s already promoted", name)
	}
	r.promoted[name] = true
	r.logf("registry: promoted tool %s to standing set", name)
	return nil
}
