package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Terminal consumes review requests from a Manager and prompts on a
// plain reader/writer pair. The CLI runs one of these in headless
// mode; the watch TUI replaces it.
type Terminal struct {
	mgr *Manager
	in  *bufio.Scanner
	out io.Writer
}

// NewTerminal creates a terminal reviewer reading answers from in and
// writing prompts to out.
func NewTerminal(mgr *Manager, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		mgr: mgr,
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// Run blocks consuming requests until ctx ends. Each request prints
// the summary and detail, then reads a y/n answer and an optional
// reason line for rejections.
func (t *Terminal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-t.mgr.RequestCh():
			if !ok {
				return
			}
			t.mgr.Submit(t.prompt(req))
		}
	}
}

// prompt asks the human about one request and returns the decision.
// EOF on input denies the request.
func (t *Terminal) prompt(req Review) Decision {
	fmt.Fprintf(t.out, "\n--- REVIEW REQUIRED [%s] ---\n", req.Kind)
	fmt.Fprintf(t.out, "Step:    %s\n", req.StepID)
	fmt.Fprintf(t.out, "Summary: %s\n", req.Summary)
	if req.Detail != "" {
		fmt.Fprintf(t.out, "%s\n", indent(req.Detail))
	}

	switch req.Kind {
	case KindVerdict:
		fmt.Fprintf(t.out, "Accept this answer? [y/N]: ")
	default:
		fmt.Fprintf(t.out, "Approve this action? [y/N]: ")
	}

	approved := false
	if t.in.Scan() {
		answer := strings.ToLower(strings.TrimSpace(t.in.Text()))
		approved = answer == "y" || answer == "yes"
	}

	reason := ""
	if !approved {
		fmt.Fprintf(t.out, "Reason (optional): ")
		if t.in.Scan() {
			reason = strings.TrimSpace(t.in.Text())
		}
		if reason == "" {
			reason = "rejected at terminal"
		}
	}

	return Decision{
		ReviewID:  req.ID,
		Approved:  approved,
		Reason:    reason,
		DecidedBy: "user",
	}
}

// indent prefixes every line of s with two spaces for prompt display.
func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
