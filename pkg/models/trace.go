package models

import "strings"

// TraceKind classifies one entry in an executor's working trace.
type TraceKind string

const (
	// TraceThought is the executor's reasoning text.
	TraceThought TraceKind = "thought"
	// TraceAction is a proposed tool invocation.
	TraceAction TraceKind = "action"
	// TraceObservation is a tool result fed back to the executor.
	TraceObservation TraceKind = "observation"
)

// TraceEntry is one step of an executor's reasoning loop.
type TraceEntry struct {
	Kind    TraceKind `json:"kind"`
	Content string    `json:"content"`
}

// Trace is the ordered working history of a single attempt.
type Trace []TraceEntry

// Render formats the trace as prompt text, one labeled block per
// entry.
func (t Trace) Render() string {
	var b strings.Builder
	for _, e := range t {
		switch e.Kind {
		case TraceThought:
			b.WriteString("[THOUGHT] ")
		case TraceAction:
			b.WriteString("[ACTION] ")
		case TraceObservation:
			b.WriteString("[OBSERVATION] ")
		}
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// LastObservation returns the most recent observation content, or an
// empty string if none exists.
func (t Trace) LastObservation() string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Kind == TraceObservation {
			return t[i].Content
		}
	}
	return ""
}

// Actions returns the action entries in order.
func (t Trace) Actions() []TraceEntry {
	var out []TraceEntry
	for _, e := range t {
		if e.Kind == TraceAction {
			out = append(out, e)
		}
	}
	return out
}
