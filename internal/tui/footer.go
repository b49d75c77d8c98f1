package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Counts holds the number of steps in each coarse state.
type Counts struct {
	Done    int
	Failed  int
	Running int
}

// Footer renders the status bar and keyboard hints.
type Footer struct {
	message     string
	success     bool
	sessionDone bool
	width       int
	counts      Counts

	successStyle   lipgloss.Style
	errorStyle     lipgloss.Style
	hintStyle      lipgloss.Style
	separatorStyle lipgloss.Style
}

// NewFooter creates a new Footer instance.
func NewFooter() *Footer {
	return &Footer{
		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		separatorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("236")),
	}
}

// SetSessionDone marks the session as complete.
func (f *Footer) SetSessionDone(done bool, success bool, message string) {
	f.sessionDone = done
	f.success = success
	f.message = message
}

// SetWidth sets the footer width.
func (f *Footer) SetWidth(width int) {
	f.width = width
}

// SetCounts updates the step counts for display.
func (f *Footer) SetCounts(counts Counts) {
	f.counts = counts
}

// View renders the footer.
func (f *Footer) View() string {
	var left string

	total := f.counts.Done + f.counts.Failed + f.counts.Running
	if total > 0 {
		left = fmt.Sprintf("✓%d", f.counts.Done)
		if f.counts.Failed > 0 {
			left += f.errorStyle.Render(fmt.Sprintf(" ✗%d", f.counts.Failed))
		}
		if f.counts.Running > 0 {
			left += fmt.Sprintf(" ⏳%d", f.counts.Running)
		}
	}

	if f.sessionDone {
		if f.success {
			left = f.successStyle.Render("✓ " + f.message)
		} else {
			left = f.errorStyle.Render("✗ " + f.message)
		}
	}

	right := f.keyboardHints()
	sep := f.separatorStyle.Render(" │ ")

	if left != "" {
		return left + sep + right
	}
	return right
}

// keyboardHints returns the hint line for the current state.
func (f *Footer) keyboardHints() string {
	if f.sessionDone {
		return f.hintStyle.Render("Press q to exit")
	}
	return f.hintStyle.Render("q quit")
}
