package tools

import (
	"fmt"

	"github.com/stewardlab/steward/pkg/models"
)

// RiskClass broadly classifies a tool's side-effect surface. The assurance
// gate grades risky tools lower unless the concrete invocation matches a
// known-safe pattern.
type RiskClass string

const (
	// RiskSafe tools are read-only against local state.
	RiskSafe RiskClass = "safe"
	// RiskStandard tools have bounded side effects, such as workspace
	// writes or structured network requests.
	RiskStandard RiskClass = "standard"
	// RiskRisky tools execute free-form input whose effects cannot be
	// determined from the parameters alone.
	RiskRisky RiskClass = "risky"
)

// Param describes one parameter in a tool contract.
type Param struct {
	// Name is the parameter key in the action directive.
	Name string `json:"name" yaml:"name"`
	// Type is one of "string", "integer", "number" or "boolean".
	Type string `json:"type" yaml:"type"`
	// Description explains the parameter to the reasoning backend.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Required marks parameters that must be present in every invocation.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// Contract is the declared interface of a tool. The gate validates proposed
// directives against it and grades their formality from it.
type Contract struct {
	// Name uniquely identifies the tool in the registry.
	Name string `json:"name" yaml:"name"`
	// Description explains what the tool does.
	Description string `json:"description" yaml:"description"`
	// Params lists the declared parameters.
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`
	// Scopes are the permission scopes an executor must hold to use
	// this tool, for example "fs:write" or "proc:exec".
	Scopes []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	// Risk classifies the tool's side-effect surface.
	Risk RiskClass `json:"risk,omitempty" yaml:"risk,omitempty"`
	// Experimental marks tools that were forged at runtime and have not
	// yet been promoted to the standing set.
	Experimental bool `json:"experimental,omitempty" yaml:"experimental,omitempty"`
}

// Validate checks a directive's parameters against the contract. It rejects
// missing required parameters, parameters the contract does not declare, and
// values whose type does not match the declaration.
func (c Contract) Validate(params map[string]any) error {
	declared := make(map[string]Param, len(c.Params))
	for _, p := range c.Params {
		declared[p.Name] = p
	}

	for _, p := range c.Params {
		if !p.Required {
			continue
		}
		if _, ok := params[p.Name]; !ok {
			return fmt.Errorf("tool %s: missing required parameter %q", c.Name, p.Name)
		}
	}

	for key, val := range params {
		p, ok := declared[key]
		if !ok {
			return fmt.Errorf("tool %s: unknown parameter %q", c.Name, key)
		}
		if !typeMatches(p.Type, val) {
			return fmt.Errorf("tool %s: parameter %q must be %s, got %T", c.Name, key, p.Type, val)
		}
	}
	return nil
}

// Completeness grades how fully a directive exercises the declared contract.
// Validation already guarantees the required parameters, so each omitted
// optional parameter costs half credit rather than full. A directive that
// fails validation grades zero; contracts with no parameters grade one.
func (c Contract) Completeness(params map[string]any) models.TrustScore {
	if err := c.Validate(params); err != nil {
		return 0
	}
	if len(c.Params) == 0 {
		return 1
	}
	missing := 0
	for _, p := range c.Params {
		if _, ok := params[p.Name]; !ok {
			missing++
		}
	}
	return models.TrustScore(1 - 0.5*float64(missing)/float64(len(c.Params)))
}

// typeMatches reports whether val is acceptable for the declared type.
// Numbers arrive as float64 when the directive was decoded from JSON and as
// native ints when constructed in code, so both are accepted.
func typeMatches(declared string, val any) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "integer":
		switch v := val.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		default:
			return false
		}
	case "number":
		switch val.(type) {
		case int, int64, float64:
			return true
		default:
			return false
		}
	default:
		// Unknown declared types accept anything rather than rejecting
		// directives a forged contract described loosely.
		return true
	}
}
