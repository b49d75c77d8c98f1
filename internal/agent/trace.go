package agent

import (
	"fmt"
	"strings"

	"github.com/stewardlab/steward/pkg/models"
)

// truncateObservation cuts observation output to the byte limit,
// marking it so the trace shows the cut.
func truncateObservation(obs models.Observation, limit int) models.Observation {
	if limit <= 0 || len(obs.Output) <= limit {
		return obs
	}
	obs.Output = obs.Output[:limit] + "\n... (output truncated)"
	obs.Truncated = true
	return obs
}

// compressTrace collapses all but the most recent keepCycles cycles
// into one synthetic thought so long attempts keep a bounded prompt.
// A cycle is an action and its observation plus any preceding
// thoughts.
func compressTrace(t models.Trace, keepCycles int) models.Trace {
	if keepCycles <= 0 {
		return t
	}

	// Find the trace index where the last keepCycles actions begin.
	actionIdx := make([]int, 0, len(t))
	for i, e := range t {
		if e.Kind == models.TraceAction {
			actionIdx = append(actionIdx, i)
		}
	}
	if len(actionIdx) <= keepCycles {
		return t
	}

	cut := actionIdx[len(actionIdx)-keepCycles]
	// Include thoughts that lead into the first kept action.
	for cut > 0 && t[cut-1].Kind == models.TraceThought {
		cut--
	}
	if cut == 0 {
		return t
	}

	summary := summarizeEntries(t[:cut])
	out := make(models.Trace, 0, len(t)-cut+1)
	out = append(out, models.TraceEntry{Kind: models.TraceThought, Content: summary})
	out = append(out, t[cut:]...)
	return out
}

// summarizeEntries renders compressed history as one note: the tools
// invoked with their result status and the tail of the last
// observation.
func summarizeEntries(entries []models.TraceEntry) string {
	var calls []string
	lastObs := ""
	for i, e := range entries {
		switch e.Kind {
		case models.TraceAction:
			tool := e.Content
			if idx := strings.IndexByte(tool, '('); idx > 0 {
				tool = tool[:idx]
			}
			status := "ok"
			if i+1 < len(entries) && entries[i+1].Kind == models.TraceObservation {
				if strings.HasPrefix(entries[i+1].Content, "error:") {
					status = "error"
				}
			}
			calls = append(calls, fmt.Sprintf("%s(%s)", strings.TrimSpace(tool), status))
		case models.TraceObservation:
			lastObs = e.Content
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Earlier work compressed: %d calls", len(calls))
	if len(calls) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(calls, ", "))
	}
	if lastObs != "" {
		const tail = 200
		if len(lastObs) > tail {
			lastObs = "..." + lastObs[len(lastObs)-tail:]
		}
		fmt.Fprintf(&b, ". Last observation: %s", lastObs)
	}
	return b.String()
}

// normalizeTrace repairs a trace ending in an action with no
// observation, which happens when an attempt terminates between
// authorization and dispatch. The synthetic observation keeps every
// recorded action paired.
func normalizeTrace(t models.Trace, reason string) models.Trace {
	if len(t) == 0 || t[len(t)-1].Kind != models.TraceAction {
		return t
	}
	content := "aborted"
	if reason != "" {
		content = "aborted: " + reason
	}
	return append(t, models.TraceEntry{Kind: models.TraceObservation, Content: content})
}

// renderDirective formats a directive for the trace as tool(params).
func renderDirective(d models.ActionDirective) string {
	if len(d.Params) == 0 {
		return d.Tool + "()"
	}
	parts := make([]string, 0, len(d.Params))
	for _, k := range sortedKeys(d.Params) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d.Params[k]))
	}
	return fmt.Sprintf("%s(%s)", d.Tool, strings.Join(parts, ", "))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
