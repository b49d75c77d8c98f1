package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// ActionDirective is a structured request by an executor to invoke a
// tool. Every directive passes through the assurance gate before the
// supervisor dispatches it.
type ActionDirective struct {
	// Tool names the tool contract to invoke.
	Tool string `json:"tool"`
	// Params carries the tool arguments.
	Params map[string]any `json:"params,omitempty"`
	// StepID is the step on whose behalf the action runs.
	StepID string `json:"step_id,omitempty"`
	// Executor names the proposing executor.
	Executor string `json:"executor,omitempty"`
}

// Fingerprint returns a stable digest of the tool name and parameters.
// Identical directives always produce identical fingerprints, so the
// gate can recognize a re-proposed action after review approval.
func (d ActionDirective) Fingerprint() string {
	var b strings.Builder
	b.WriteString(d.Tool)
	b.WriteByte('\n')

	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		if v, err := json.Marshal(d.Params[k]); err == nil {
			b.Write(v)
		}
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// Observation is the result of a dispatched action, fed back into the
// executor's working trace.
type Observation struct {
	// Output is the tool's textual result.
	Output string `json:"output"`
	// IsError marks the observation as a tool failure.
	IsError bool `json:"is_error,omitempty"`
	// Truncated marks output that was cut to fit the trace.
	Truncated bool `json:"truncated,omitempty"`
}
