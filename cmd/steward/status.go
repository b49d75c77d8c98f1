package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/state"
	"github.com/stewardlab/steward/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show session state",
	Long: `Show recent sessions, or the full step-by-step state of one session.

Without arguments, lists the most recent sessions and flags any that
were interrupted mid-run. With a session ID, shows the session's goal,
budgets, and every step with its attempts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	db, found, err := openStateDB()
	if err != nil {
		return err
	}
	if !found {
		fmt.Println("No sessions yet. Run 'steward run <query>' to start.")
		return nil
	}
	defer db.Close()

	if len(args) == 1 {
		return displaySessionDetail(db, args[0])
	}
	return displayRecentSessions(db)
}

// openStateDB opens the project database if one exists, falling back to
// the global database. found is false when neither exists yet.
func openStateDB() (*state.DB, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, false, fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, false, nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return nil, false, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, false, fmt.Errorf("migrate database: %w", err)
	}
	return db, true, nil
}

func displaySessionDetail(db *state.DB, sessionID string) error {
	session, err := db.LoadSession(sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("unknown session %s", sessionID)
	}

	var tokensUsed int64
	for _, step := range session.Steps {
		for _, a := range step.Attempts {
			tokensUsed += a.TokensUsed
		}
	}
	lastSeq, err := db.LastEventSeq(sessionID)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	fmt.Printf("Session %s (%s)\n", shortSessionID(session.ID), session.State)
	fmt.Printf("  Goal: %s\n", session.Goal)
	fmt.Printf("  Created: %s ago\n", formatDuration(time.Since(session.CreatedAt)))
	fmt.Printf("  Budget: %s tokens · %s wall clock\n", budgetLabel(session.TokenBudget), wallLabel(session.WallClockBudget))
	fmt.Printf("  Used: %s tokens · %d events\n", formatNumber(tokensUsed), lastSeq)
	if session.AbortReason != "" {
		fmt.Printf("  Abort reason: %s\n", session.AbortReason)
	}

	if len(session.Steps) == 0 {
		return nil
	}
	fmt.Println("\nSteps:")
	for _, step := range session.Steps {
		fmt.Println(stepLine(step))
	}
	return nil
}

// stepLine renders one step for the detail view.
func stepLine(step *models.PlanStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s %-10s %-9s %s", stepGlyph(step.Status), step.ID, step.Capability, truncateText(step.Description, 56))
	if n := len(step.Attempts); n > 0 {
		last := step.Attempts[n-1]
		word := "attempts"
		if n == 1 {
			word = "attempt"
		}
		fmt.Fprintf(&b, "  (%d %s, last on %s)", n, word, last.Tier)
	}
	switch {
	case step.BlockedReason != "":
		fmt.Fprintf(&b, "\n      blocked: %s", step.BlockedReason)
	case step.Status == models.StepFailed && step.Error != "":
		fmt.Fprintf(&b, "\n      error: %s", step.Error)
	}
	return b.String()
}

func displayRecentSessions(db *state.DB) error {
	sessions, err := db.ListSessions(nil)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions yet. Run 'steward run <query>' to start.")
		return nil
	}

	fmt.Println("Recent Sessions:")
	for i, s := range sessions {
		if i >= 5 {
			break
		}
		fmt.Printf("  %s  %-12s %6s ago  %s\n",
			shortSessionID(s.ID), s.State,
			formatDuration(time.Since(s.CreatedAt)),
			truncateText(s.Goal, 48))
	}

	interrupted, err := db.ListInterruptedSessions()
	if err != nil {
		return fmt.Errorf("list interrupted sessions: %w", err)
	}
	if len(interrupted) > 0 {
		fmt.Printf("\n%d interrupted session(s). Resume with 'steward resume <session-id>'.\n", len(interrupted))
	}
	return nil
}

func budgetLabel(tokens int64) string {
	if tokens <= 0 {
		return "unlimited"
	}
	return formatNumber(tokens)
}

func wallLabel(wall time.Duration) string {
	if wall <= 0 {
		return "unlimited"
	}
	return formatDuration(wall)
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	if h > 0 {
		return fmt.Sprintf("%dd%dh", days, h)
	}
	return fmt.Sprintf("%dd", days)
}

// formatNumber renders n with comma grouping, for example 142350 as
// "142,350".
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
