package agent

import (
	"fmt"
	"strings"

	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/pkg/models"
)

// systemPrompt instructs the backend on the strict turn format and
// lists the tools it may request.
func systemPrompt(contracts []tools.Contract) string {
	var b strings.Builder

	b.WriteString(`You are an executor solving one step of a larger plan.
Work in strict turns. Every response must use exactly this format:

PLAN: <one line: what you intend to do next and why>
THOUGHT: <your reasoning about the current state>
ACTION: {"tool": "<name>", "params": {...}}

or, when the step is complete:

PLAN: <one line>
THOUGHT: <your reasoning>
FINAL: <the step's answer>

Rules:
- Exactly one ACTION or one FINAL per response, never both.
- Never write OBSERVATION lines; results are provided to you.
- ACTION must be a single JSON object naming a listed tool.
`)

	if len(contracts) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, c := range contracts {
			b.WriteString(renderContract(c))
		}
	}
	return b.String()
}

// renderContract formats one tool contract for the system prompt.
func renderContract(c tools.Contract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
	for _, p := range c.Params {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "    %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
	}
	return b.String()
}

// turnPrompt assembles the user-turn content for one iteration: the
// step, prior feedback, operator notes, and the working trace.
func turnPrompt(req AttemptRequest, trace models.Trace, steering []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Step: %s\n", req.Step.Description)
	if req.Step.AcceptanceCriteria != "" {
		fmt.Fprintf(&b, "Acceptance criteria: %s\n", req.Step.AcceptanceCriteria)
	}
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nA previous answer was rejected by verification:\n%s\nAddress this feedback.\n", req.Feedback)
	}
	for _, note := range steering {
		fmt.Fprintf(&b, "\nOperator note: %s\n", note)
	}
	if len(trace) > 0 {
		b.WriteString("\nWork so far:\n")
		b.WriteString(trace.Render())
	}
	b.WriteString("\nRespond with your next turn.")
	return b.String()
}
