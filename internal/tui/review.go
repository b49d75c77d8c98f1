package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/stewardlab/steward/internal/review"
)

// ReviewPrompt displays a pending review and collects the operator's
// decision. It takes over the screen while active.
type ReviewPrompt struct {
	active bool
	req    review.Review

	width  int
	height int

	// viewport scrolls the detail text.
	viewport viewport.Model

	titleStyle  lipgloss.Style
	headerStyle lipgloss.Style
	bodyStyle   lipgloss.Style
	promptStyle lipgloss.Style
}

// NewReviewPrompt creates an inactive prompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{
		width:  80,
		height: 24,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Background(lipgloss.Color("236")).
			Padding(0, 2),
		headerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true),
		bodyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		promptStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
	}
}

// Show activates the prompt for the given review.
func (r *ReviewPrompt) Show(req review.Review) {
	r.req = req
	vp := viewport.New(min(r.width, 80), r.pageSize())
	vp.SetContent(r.bodyStyle.Render(req.Detail))
	r.viewport = vp
	r.active = true
}

// Active reports whether a review is awaiting a decision.
func (r *ReviewPrompt) Active() bool {
	return r.active
}

// SetSize updates the prompt and viewport dimensions.
func (r *ReviewPrompt) SetSize(width, height int) {
	r.width = width
	r.height = height
	r.viewport.Width = min(width, 80)
	r.viewport.Height = r.pageSize()
}

// Handle processes one key press while the prompt is active. It
// returns the decision and true once the operator has answered.
func (r *ReviewPrompt) Handle(key string) (review.Decision, bool) {
	if !r.active {
		return review.Decision{}, false
	}

	switch key {
	case "y", "Y":
		d := review.Decision{
			ReviewID:  r.req.ID,
			Approved:  true,
			DecidedBy: "user",
		}
		r.reset()
		return d, true

	case "n", "N":
		d := review.Decision{
			ReviewID:  r.req.ID,
			Approved:  false,
			Reason:    "rejected by operator",
			DecidedBy: "user",
		}
		r.reset()
		return d, true

	case "up", "k":
		r.viewport.LineUp(1)
	case "down", "j":
		r.viewport.LineDown(1)
	case "pgup", "b":
		r.viewport.ViewUp()
	case "pgdown", "f", " ":
		r.viewport.ViewDown()
	case "home", "g":
		r.viewport.GotoTop()
	case "end", "G":
		r.viewport.GotoBottom()
	}

	return review.Decision{}, false
}

// View renders the prompt.
func (r *ReviewPrompt) View() string {
	if !r.active {
		return ""
	}

	var sb strings.Builder

	title := " Review Required "
	if r.req.Kind == review.KindVerdict {
		title = " Verdict Review Required "
	}
	sb.WriteString(r.titleStyle.Render(title))
	sb.WriteString("\n\n")

	sb.WriteString(r.headerStyle.Render("Step: "))
	sb.WriteString(r.req.StepID)
	sb.WriteString("\n")
	sb.WriteString(r.headerStyle.Render("Question: "))
	sb.WriteString(r.req.Summary)
	sb.WriteString("\n")
	if r.req.Kind == review.KindAction && r.req.Action.Tool != "" {
		sb.WriteString(r.headerStyle.Render("Tool: "))
		sb.WriteString(r.req.Action.Tool)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(strings.Repeat("─", min(r.width, 80)))
	sb.WriteString("\n")
	sb.WriteString(r.viewport.View())
	sb.WriteString("\n")
	if r.viewport.TotalLineCount() > r.viewport.Height {
		sb.WriteString(fmt.Sprintf("--- %d%% of %d lines ---\n",
			int(r.viewport.ScrollPercent()*100), r.viewport.TotalLineCount()))
	}
	sb.WriteString(strings.Repeat("─", min(r.width, 80)))
	sb.WriteString("\n\n")

	verb := "Allow this action?"
	if r.req.Kind == review.KindVerdict {
		verb = "Accept this answer?"
	}
	sb.WriteString(r.promptStyle.Render(verb + " [Y]es / [N]o"))
	sb.WriteString("\n")
	sb.WriteString("(j/k to scroll)")

	return sb.String()
}

// pageSize is how many detail lines fit on screen.
func (r *ReviewPrompt) pageSize() int {
	size := r.height - 12
	if size < 5 {
		size = 5
	}
	return size
}

// reset clears the prompt state.
func (r *ReviewPrompt) reset() {
	r.active = false
	r.req = review.Review{}
	r.viewport.SetContent("")
}
