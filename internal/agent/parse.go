package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stewardlab/steward/pkg/models"
)

// Output markers the backend is instructed to emit. One turn is a
// planning note, a reasoning block, and either an action directive or
// a final answer.
const (
	markerPlan    = "PLAN:"
	markerThought = "THOUGHT:"
	markerAction  = "ACTION:"
	markerFinal   = "FINAL:"
	// markerObservation never appears in valid output; the runner
	// inserts observations itself. Anything after one is the model
	// inventing tool results and gets truncated.
	markerObservation = "OBSERVATION:"
)

// errNoDirective indicates a turn with neither an action nor a final
// answer.
var errNoDirective = errors.New("turn contains neither an action nor a final answer")

// turn is one parsed backend response.
type turn struct {
	// plan is the short planning note, may be empty.
	plan string
	// thought is the reasoning block, may be empty.
	thought string
	// action is the proposed directive, nil when the turn finishes.
	action *models.ActionDirective
	// final is the final answer when the turn finishes.
	final string
	// done is true when the turn carried a final answer.
	done bool
	// truncated is true when hallucinated observations were cut.
	truncated bool
}

// parseTurn extracts the three-part structure from a raw completion.
// It tolerates missing plan and thought sections but requires either
// an action directive or a final answer.
func parseTurn(raw string) (turn, error) {
	var t turn

	cleaned, cut := truncateHallucination(raw)
	t.truncated = cut

	t.plan = section(cleaned, markerPlan)
	t.thought = section(cleaned, markerThought)

	if idx := markerIndex(cleaned, markerFinal); idx >= 0 {
		t.final = strings.TrimSpace(cleaned[idx+len(markerFinal):])
		t.done = true
		return t, nil
	}

	if idx := markerIndex(cleaned, markerAction); idx >= 0 {
		body := cleaned[idx+len(markerAction):]
		obj, ok := extractJSONObject(body)
		if !ok {
			return t, fmt.Errorf("action marker present but no JSON object follows")
		}
		var d models.ActionDirective
		if err := json.Unmarshal([]byte(obj), &d); err != nil {
			return t, fmt.Errorf("decode action directive: %w", err)
		}
		if d.Tool == "" {
			return t, fmt.Errorf("action directive names no tool")
		}
		t.action = &d
		return t, nil
	}

	return t, errNoDirective
}

// truncateHallucination cuts the response at the first observation
// marker the model emitted on its own. Returns the cleaned text and
// whether anything was removed.
func truncateHallucination(raw string) (string, bool) {
	idx := markerIndex(raw, markerObservation)
	if idx < 0 {
		return raw, false
	}
	return raw[:idx], true
}

// section returns the text between marker and the next known marker,
// trimmed. Missing markers return an empty string.
func section(s, marker string) string {
	start := markerIndex(s, marker)
	if start < 0 {
		return ""
	}
	body := s[start+len(marker):]

	end := len(body)
	for _, m := range []string{markerPlan, markerThought, markerAction, markerFinal, markerObservation} {
		if m == marker {
			continue
		}
		if idx := markerIndex(body, m); idx >= 0 && idx < end {
			end = idx
		}
	}
	return strings.TrimSpace(body[:end])
}

// markerIndex finds a marker at the start of the string or of a line,
// so prose mentioning "ACTION:" mid-sentence does not split a section.
func markerIndex(s, marker string) int {
	if strings.HasPrefix(s, marker) {
		return 0
	}
	idx := strings.Index(s, "\n"+marker)
	if idx < 0 {
		return -1
	}
	return idx + 1
}

// extractJSONObject returns the first balanced JSON object in s. Brace
// matching respects string literals and escapes, so parameter values
// containing braces do not end the object early.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}
