package models

import "time"

// Executor describes one registered problem-solving agent the router
// can assign work to.
type Executor struct {
	// ID is the unique identifier for this executor.
	ID string `json:"id" yaml:"id"`
	// Capabilities lists the capability tags this executor advertises.
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	// Tier is the capability tier this executor operates at.
	Tier Tier `json:"tier" yaml:"tier"`
	// Scopes lists the resource scopes this executor declares, for
	// example "fs:read:/tmp" or "net:http:api.example.com".
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	// Experimental marks executors running forged tool contracts that
	// have not yet earned standing registration.
	Experimental bool `json:"experimental,omitempty" yaml:"experimental,omitempty"`
	// MaxConcurrent caps simultaneous assignments to this executor.
	// Zero means the global ceiling applies alone.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// RegisteredAt is when the executor joined the registry.
	RegisteredAt time.Time `json:"registered_at,omitempty" yaml:"-"`
}

// HasCapability returns true if the executor advertises the tag.
func (e *Executor) HasCapability(tag string) bool {
	for _, c := range e.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// ExactCapability returns true if the tag is the executor's only
// advertised capability. The router prefers exact matches over
// supersets.
func (e *Executor) ExactCapability(tag string) bool {
	return len(e.Capabilities) == 1 && e.Capabilities[0] == tag
}

// HasScope returns true if the executor declares the scope or a
// prefix of it. Scope "fs:write" covers "fs:write:/tmp/out".
func (e *Executor) HasScope(scope string) bool {
	for _, s := range e.Scopes {
		if s == scope {
			return true
		}
		if len(scope) > len(s) && scope[:len(s)] == s && scope[len(s)] == ':' {
			return true
		}
	}
	return false
}
