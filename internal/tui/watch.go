package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/pkg/models"
)

// EventMsg delivers one session event to the watch view.
type EventMsg struct {
	Event models.Event
}

// ReviewRequestMsg asks the watch view to prompt the operator for a
// decision.
type ReviewRequestMsg struct {
	Review review.Review
}

// DoneMsg signals that the session finished outside the event stream,
// for example a planning failure before any event was appended.
type DoneMsg struct {
	Err error
}

// tickMsg drives the spinner and the elapsed clock.
type tickMsg time.Time

// spinnerFrames cycles while work is in flight.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// maxEventLines bounds the event tail.
const maxEventLines = 8

// stepRow tracks one plan step's progress through the session.
type stepRow struct {
	id          string
	description string
	tier        models.Tier
	attempts    int
	// note is the last activity shown next to the step, for example
	// "verifying" or "tool_failure, retrying".
	note   string
	active bool
	done   bool
	failed bool
}

// WatchConfig configures the watch view.
type WatchConfig struct {
	// SessionQuery is shown in the header until the session ID is
	// known.
	SessionQuery string
	// RefreshRate is the spinner and clock tick. Zero uses 100ms.
	RefreshRate time.Duration
	// OnDecision receives the operator's answer to a review prompt.
	OnDecision func(review.Decision)
}

// WatchApp is the bubbletea model for steward's watch mode.
type WatchApp struct {
	cfg       WatchConfig
	sessionID string
	phase     string

	rows  map[string]*stepRow
	order []string

	events []string

	tokensUsed int64
	actions    int
	warning    string

	prompt *ReviewPrompt
	footer *Footer

	startedAt time.Time
	frame     int
	width     int
	height    int

	done     bool
	quitting bool

	titleStyle lipgloss.Style
	dimStyle   lipgloss.Style
	warnStyle  lipgloss.Style
	doneStyle  lipgloss.Style
	failStyle  lipgloss.Style
	tierStyle  lipgloss.Style
}

// NewWatch creates a watch model.
func NewWatch(cfg WatchConfig) *WatchApp {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 100 * time.Millisecond
	}
	return &WatchApp{
		cfg:       cfg,
		phase:     "planning",
		rows:      make(map[string]*stepRow),
		prompt:    NewReviewPrompt(),
		footer:    NewFooter(),
		startedAt: time.Now(),
		width:     80,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		tierStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")),
	}
}

// SetPlan pre-populates the step table when the plan is known up
// front. Steps discovered from events are appended after these.
func (w *WatchApp) SetPlan(steps []*models.PlanStep) {
	for _, step := range steps {
		w.row(step.ID).description = step.Description
		w.row(step.ID).tier = step.Tier
	}
}

// Init implements tea.Model.
func (w *WatchApp) Init() tea.Cmd {
	return w.tick()
}

// Update implements tea.Model.
func (w *WatchApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// An active review prompt owns the keyboard, except quit.
		if w.prompt.Active() {
			switch msg.String() {
			case "ctrl+c":
				w.quitting = true
				return w, tea.Quit
			default:
				if decision, ok := w.prompt.Handle(msg.String()); ok {
					w.phase = "executing"
					if w.cfg.OnDecision != nil {
						w.cfg.OnDecision(decision)
					}
				}
				return w, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			w.quitting = true
			return w, tea.Quit
		}

	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		w.footer.SetWidth(msg.Width)
		w.prompt.SetSize(msg.Width, msg.Height)

	case EventMsg:
		w.handleEvent(msg.Event)

	case ReviewRequestMsg:
		w.phase = "waiting on review"
		w.prompt.Show(msg.Review)

	case DoneMsg:
		w.done = true
		if msg.Err != nil {
			w.footer.SetSessionDone(true, false, msg.Err.Error())
		}

	case tickMsg:
		w.frame++
		if w.done {
			return w, nil
		}
		return w, w.tick()
	}

	return w, nil
}

// View implements tea.Model.
func (w *WatchApp) View() string {
	if w.quitting {
		return ""
	}

	if w.prompt.Active() {
		return w.prompt.View()
	}

	var sb strings.Builder
	sb.WriteString(w.viewHeader())
	sb.WriteString("\n")

	if w.warning != "" {
		sb.WriteString(w.warnStyle.Render("⚠ " + w.warning))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(w.viewSteps())
	sb.WriteString("\n")
	sb.WriteString(w.viewEvents())
	sb.WriteString("\n")
	sb.WriteString(w.footer.View())

	return sb.String()
}

// viewHeader renders the one-line session summary.
func (w *WatchApp) viewHeader() string {
	glyph := w.dimStyle.Render("●")
	if !w.done {
		glyph = spinnerFrames[w.frame%len(spinnerFrames)]
	}

	name := w.sessionID
	if name == "" {
		name = w.cfg.SessionQuery
		if len(name) > 32 {
			name = name[:32] + "…"
		}
	}

	elapsed := time.Since(w.startedAt).Round(time.Second)
	parts := []string{
		glyph + " " + w.titleStyle.Render("steward") + " " + name,
		w.phase,
		elapsed.String(),
		formatTokens(w.tokensUsed) + " tokens",
	}
	if w.actions > 0 {
		parts = append(parts, fmt.Sprintf("%d actions", w.actions))
	}
	return strings.Join(parts, w.dimStyle.Render(" │ "))
}

// viewSteps renders the step table.
func (w *WatchApp) viewSteps() string {
	if len(w.order) == 0 {
		return w.dimStyle.Render("  waiting for plan...") + "\n"
	}

	var sb strings.Builder
	for _, id := range w.order {
		row := w.rows[id]

		glyph := w.dimStyle.Render("·")
		switch {
		case row.done:
			glyph = w.doneStyle.Render("✓")
		case row.failed:
			glyph = w.failStyle.Render("✗")
		case row.active:
			glyph = spinnerFrames[w.frame%len(spinnerFrames)]
		}

		desc := row.description
		if desc == "" {
			desc = id
		}
		if len(desc) > 48 {
			desc = desc[:48] + "…"
		}

		line := fmt.Sprintf("  %s %-10s %s %s", glyph, id, w.tierStyle.Render(fmt.Sprintf("%-8s", row.tier)), desc)
		if row.attempts > 0 {
			line += w.dimStyle.Render(fmt.Sprintf("  (%d attempt", row.attempts))
			if row.attempts > 1 {
				line += w.dimStyle.Render("s")
			}
			line += w.dimStyle.Render(")")
		}
		if row.note != "" {
			line += "  " + w.dimStyle.Render(row.note)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// viewEvents renders the recent event tail.
func (w *WatchApp) viewEvents() string {
	if len(w.events) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, line := range w.events {
		sb.WriteString("  ")
		sb.WriteString(w.dimStyle.Render(line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// tick schedules the next spinner frame.
func (w *WatchApp) tick() tea.Cmd {
	return tea.Tick(w.cfg.RefreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// row returns the tracked state for a step, creating it on first
// sight.
func (w *WatchApp) row(stepID string) *stepRow {
	if r, ok := w.rows[stepID]; ok {
		return r
	}
	r := &stepRow{id: stepID}
	w.rows[stepID] = r
	w.order = append(w.order, stepID)
	return r
}

// handleEvent folds one session event into the view state.
func (w *WatchApp) handleEvent(e models.Event) {
	if w.sessionID == "" && e.SessionID != "" {
		w.sessionID = shortID(e.SessionID)
	}

	switch e.Kind {
	case models.EventStepReady:
		w.phase = "executing"
		row := w.row(e.StepID)
		if p, err := models.DecodePayload[models.StepReadyPayload](e); err == nil {
			if p.Description != "" {
				row.description = p.Description
			}
			row.tier = p.Tier
		}
		row.active = true
		row.note = ""
		w.logEvent(e, "ready")

	case models.EventActionProposed:
		if p, err := models.DecodePayload[models.ActionPayload](e); err == nil {
			w.logEvent(e, "proposed "+p.Tool)
		}

	case models.EventActionAuthorized:
		w.actions++
		if p, err := models.DecodePayload[models.ActionPayload](e); err == nil {
			w.logEvent(e, "ran "+p.Tool)
		}

	case models.EventActionBlocked:
		if p, err := models.DecodePayload[models.ActionPayload](e); err == nil {
			w.logEvent(e, fmt.Sprintf("blocked %s: %s", p.Tool, p.Reason))
		}

	case models.EventAttemptOutcome:
		row := w.row(e.StepID)
		if e.AttemptSeq > row.attempts {
			row.attempts = e.AttemptSeq
		}
		p, err := models.DecodePayload[models.AttemptOutcomePayload](e)
		if err != nil {
			return
		}
		w.tokensUsed += p.TokensUsed
		if p.Tier != "" {
			row.tier = p.Tier
		}
		switch p.Outcome {
		case models.OutcomeSuccess:
			row.note = "verifying"
		default:
			row.note = string(p.Outcome)
			if p.Error != "" {
				row.note = string(p.Outcome) + ": " + truncate(p.Error, 40)
			}
		}
		w.logEvent(e, fmt.Sprintf("attempt %d %s", e.AttemptSeq, p.Outcome))

	case models.EventEscalated:
		row := w.row(e.StepID)
		if p, err := models.DecodePayload[models.EscalatedPayload](e); err == nil {
			row.tier = p.ToTier
			row.note = fmt.Sprintf("escalated %s → %s", p.FromTier, p.ToTier)
			w.logEvent(e, row.note)
		}

	case models.EventVerified:
		row := w.row(e.StepID)
		p, err := models.DecodePayload[models.VerifiedPayload](e)
		if err != nil {
			return
		}
		if p.Verdict == string(models.VerdictPass) {
			row.done = true
			row.active = false
			row.note = ""
		} else {
			row.note = "rework: " + truncate(p.Detail, 40)
		}
		w.logEvent(e, fmt.Sprintf("verified %s", p.Verdict))

	case models.EventBudgetWarning:
		if p, err := models.DecodePayload[models.BudgetWarningPayload](e); err == nil {
			w.warning = fmt.Sprintf("%s budget %d%% used (%d of %d)",
				p.Dimension, int(p.Fraction*100), p.Used, p.Limit)
			w.logEvent(e, "budget warning: "+p.Dimension)
		}

	case models.EventSessionTerminal:
		w.done = true
		p, err := models.DecodePayload[models.TerminalPayload](e)
		if err != nil {
			w.footer.SetSessionDone(true, false, "session ended")
			return
		}
		w.phase = string(p.State)
		// Mark unfinished rows failed so the table matches the counts.
		for _, row := range w.rows {
			row.active = false
			if !row.done {
				row.failed = true
			}
		}
		w.footer.SetCounts(Counts{Done: p.StepsDone, Failed: p.StepsFailed})
		msg := fmt.Sprintf("%s: %d done, %d failed", p.State, p.StepsDone, p.StepsFailed)
		if p.Reason != "" {
			msg += " (" + p.Reason + ")"
		}
		w.footer.SetSessionDone(true, p.State == models.SessionCompleted && p.StepsFailed == 0, msg)
	}

	// Keep the footer's running counts fresh.
	if !w.done {
		var c Counts
		for _, row := range w.rows {
			switch {
			case row.done:
				c.Done++
			case row.failed:
				c.Failed++
			case row.active:
				c.Running++
			}
		}
		w.footer.SetCounts(c)
	}
}

// logEvent appends a formatted line to the event tail.
func (w *WatchApp) logEvent(e models.Event, detail string) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s %s", ts.Local().Format("15:04:05"), detail)
	if e.StepID != "" {
		line = fmt.Sprintf("%s %s  %s", ts.Local().Format("15:04:05"), e.StepID, detail)
	}
	w.events = append(w.events, line)
	if len(w.events) > maxEventLines {
		w.events = w.events[len(w.events)-maxEventLines:]
	}
}

// formatTokens renders a token count compactly.
func formatTokens(n int64) string {
	if n >= 10000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// shortID returns the teacher-convention 8-character session ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run starts a standalone watch program (mainly for manual testing).
func Run(cfg WatchConfig) error {
	app := NewWatch(cfg)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// NewWatchProgram creates a Bubbletea program for the watch view. The
// returned program receives messages via Send().
func NewWatchProgram(cfg WatchConfig) (*tea.Program, *WatchApp) {
	app := NewWatch(cfg)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
