package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/state"
	"github.com/stewardlab/steward/pkg/models"
)

var eventsFollow bool

// followPollInterval is how often --follow re-reads the event table.
const followPollInterval = 500 * time.Millisecond

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Show a session's event trail",
	Long: `Print the append-only event trail of a session, one line per event
in sequence order.

With --follow, keep polling for new events until the session reaches a
terminal state or the command is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: showEvents,
}

func init() {
	eventsCmd.Flags().BoolVar(&eventsFollow, "follow", false, "Keep printing new events until the session ends")
}

func showEvents(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	db, found, err := openStateDB()
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no steward database found")
	}
	defer db.Close()

	events, err := db.ListEvents(sessionID)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	var lastSeq int64
	terminal := false
	for _, e := range events {
		fmt.Println(renderEventLine(e))
		lastSeq = e.Seq
		if e.Kind == models.EventSessionTerminal {
			terminal = true
		}
	}

	if !eventsFollow || terminal {
		return nil
	}
	return followEvents(db, sessionID, lastSeq)
}

// followEvents polls for events past lastSeq until a terminal event
// arrives or the user interrupts.
func followEvents(db *state.DB, sessionID string, lastSeq int64) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return nil
		case <-ticker.C:
			events, err := db.ListEvents(sessionID)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			for _, e := range events {
				if e.Seq <= lastSeq {
					continue
				}
				fmt.Println(renderEventLine(e))
				lastSeq = e.Seq
				if e.Kind == models.EventSessionTerminal {
					return nil
				}
			}
		}
	}
}

// renderEventLine renders one event as a timestamped line for headless
// output and the events command.
func renderEventLine(e models.Event) string {
	return fmt.Sprintf("%s  %-18s %s", e.Timestamp.Local().Format("15:04:05"), e.Kind, describeEvent(e))
}

// describeEvent summarizes an event's payload in one line.
func describeEvent(e models.Event) string {
	switch e.Kind {
	case models.EventStepReady:
		p, err := models.DecodePayload[models.StepReadyPayload](e)
		if err != nil {
			return e.StepID
		}
		return fmt.Sprintf("%s: %s (%s, %s)", e.StepID, p.Description, p.Capability, p.Tier)
	case models.EventActionProposed:
		p, err := models.DecodePayload[models.ActionPayload](e)
		if err != nil {
			return e.StepID
		}
		return fmt.Sprintf("%s proposes %s on %s", e.Actor, p.Tool, e.StepID)
	case models.EventActionAuthorized:
		p, err := models.DecodePayload[models.ActionPayload](e)
		if err != nil {
			return e.StepID
		}
		return fmt.Sprintf("%s on %s", p.Tool, e.StepID)
	case models.EventActionBlocked:
		p, err := models.DecodePayload[models.ActionPayload](e)
		if err != nil {
			return e.StepID
		}
		return fmt.Sprintf("%s on %s: %s", p.Tool, e.StepID, p.Reason)
	case models.EventAttemptOutcome:
		p, err := models.DecodePayload[models.AttemptOutcomePayload](e)
		if err != nil {
			return e.StepID
		}
		line := fmt.Sprintf("%s attempt %d: %s (%s, %s tokens)", e.StepID, e.AttemptSeq, p.Outcome, p.Tier, formatNumber(p.TokensUsed))
		if p.Error != "" {
			line += " " + truncateText(p.Error, 60)
		}
		return line
	case models.EventEscalated:
		p, err := models.DecodePayload[models.EscalatedPayload](e)
		if err != nil {
			return e.StepID
		}
		return fmt.Sprintf("%s: %s → %s (%s)", e.StepID, p.FromTier, p.ToTier, p.Reason)
	case models.EventVerified:
		p, err := models.DecodePayload[models.VerifiedPayload](e)
		if err != nil {
			return e.StepID
		}
		line := fmt.Sprintf("%s: %s by %s", e.StepID, p.Verdict, p.Verifier)
		if p.Detail != "" {
			line += ": " + truncateText(p.Detail, 60)
		}
		return line
	case models.EventBudgetWarning:
		p, err := models.DecodePayload[models.BudgetWarningPayload](e)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%s %d%% used (%s of %s)", p.Dimension, int(p.Fraction*100), formatNumber(p.Used), formatNumber(p.Limit))
	case models.EventSessionTerminal:
		p, err := models.DecodePayload[models.TerminalPayload](e)
		if err != nil {
			return ""
		}
		reason := ""
		if p.Reason != "" {
			reason = ": " + p.Reason
		}
		return fmt.Sprintf("%s, %d done, %d failed%s", p.State, p.StepsDone, p.StepsFailed, reason)
	default:
		return e.StepID
	}
}
