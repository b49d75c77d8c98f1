package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/internal/planner"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/supervisor"
	"github.com/stewardlab/steward/pkg/models"
)

var (
	runPlanFile      string
	runWatch         bool
	runTier          string
	runBudgetTokens  int64
	runBudgetWall    time.Duration
	runBudgetActions int64
)

var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Run a goal through supervised execution",
	Long: `Run a goal end to end: plan it into dependency-ordered steps, execute
each step on the cheapest capable tier, verify every output, and
escalate only where retries at the same tier keep failing.

The session is persisted as it runs. Interrupt with Ctrl+C and pick it
back up later with 'steward resume <session-id>'.

Planning:
  By default the goal is decomposed by the planning backend. Pass
  --plan to execute a prepared YAML plan instead:

    steps:
      - id: gather
        desc: collect the source material
        capability: research
      - id: draft
        desc: write the summary
        capability: writing
        depends_on: [gather]

Tiers (--tier sets the planning tier):
  reflex    cheapest, for deterministic or trivial work
  light     small and fast, for simple reasoning
  standard  the general-purpose default
  heavy     most capable, most expensive

Reviews:
  Actions the assurance gate withholds, and verdicts the verifier
  abstains on, pause the session for a decision. Headless runs prompt
  on the terminal; --watch answers from the live view.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "Execute a YAML plan file instead of decomposing the query")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Watch the session in a live terminal view")
	runCmd.Flags().StringVar(&runTier, "tier", "", "Planning tier: reflex, light, standard, or heavy (default from config)")
	runCmd.Flags().Int64Var(&runBudgetTokens, "budget-tokens", 0, "Token budget for the session (default from config)")
	runCmd.Flags().DurationVar(&runBudgetWall, "budget-wall", 0, "Wall-clock budget for the session (default from config)")
	runCmd.Flags().Int64Var(&runBudgetActions, "budget-actions", 0, "Tool-action budget for the session (default from config)")
}

func runSession(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in run: %v", r)
		}
	}()

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" && runPlanFile == "" {
		return fmt.Errorf("a query or --plan file is required")
	}

	verbose := os.Getenv("STEWARD_DEBUG") != ""
	if verbose {
		fmt.Printf("[DEBUG] Query: %s\n", query)
		fmt.Printf("[DEBUG] Plan file: %q\n", runPlanFile)
		fmt.Printf("[DEBUG] Watch: %v\n", runWatch)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cmd, cfg)

	tier := models.Tier(cfg.Defaults.Tier)
	if !tier.Valid() {
		return fmt.Errorf("invalid tier %q: want reflex, light, standard, or heavy", cfg.Defaults.Tier)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	extra := []supervisor.Option{
		supervisor.WithPlannerOptions(planner.WithPlanningTier(tier)),
	}
	var planSteps []*models.PlanStep
	if runPlanFile != "" {
		planSteps, err = planner.LoadPlanFile(runPlanFile)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
		extra = append(extra, supervisor.WithPlan(planSteps))
		if query == "" {
			query = "plan: " + filepath.Base(runPlanFile)
		}
	}

	sup, reviews, cleanup, err := newSupervisor(cfg, workDir, verbose, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	start := func(ctx context.Context) (*supervisor.Report, error) {
		return sup.Run(ctx, query)
	}
	if runWatch {
		return runWithWatch(ctx, sup, reviews, cfg, query, planSteps, start)
	}
	return runHeadless(ctx, sup, reviews, start)
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("tier") {
		cfg.Defaults.Tier = runTier
	}
	if cmd.Flags().Changed("budget-tokens") {
		cfg.Budgets.Tokens = runBudgetTokens
	}
	if cmd.Flags().Changed("budget-wall") {
		cfg.Budgets.WallClock = runBudgetWall
	}
	if cmd.Flags().Changed("budget-actions") {
		cfg.Budgets.Actions = runBudgetActions
	}
}

// runHeadless executes the session while printing the event trail inline
// and answering review requests on the terminal.
func runHeadless(ctx context.Context, sup *supervisor.Supervisor, reviews *review.Manager, start func(context.Context) (*supervisor.Report, error)) error {
	events, cancelSub := sup.Events().Subscribe(128)
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for e := range events {
			fmt.Println(renderEventLine(e))
		}
	}()

	promptCtx, stopPrompts := context.WithCancel(ctx)
	go promptReviews(promptCtx, reviews)

	report, err := start(ctx)

	stopPrompts()
	cancelSub()
	<-printerDone

	if report != nil {
		printReport(report)
	}
	return err
}

// promptReviews consumes review requests and asks for a y/n decision on
// stdin until the context ends.
func promptReviews(ctx context.Context, m *review.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.RequestCh():
			m.Submit(promptDecision(scanner, req))
		}
	}
}

func promptDecision(scanner *bufio.Scanner, req review.Review) review.Decision {
	bold := color.New(color.Bold)
	fmt.Println()
	if req.Kind == review.KindVerdict {
		bold.Printf("VERDICT REVIEW · step %s\n", req.StepID)
	} else {
		bold.Printf("ACTION REVIEW · step %s\n", req.StepID)
	}
	fmt.Println(req.Summary)
	if req.Detail != "" {
		printIndented(clipDetail(req.Detail, 2000))
	}
	if req.Kind == review.KindVerdict {
		fmt.Print("Accept this answer? [y/N]: ")
	} else {
		fmt.Print("Allow this action? [y/N]: ")
	}

	answer := ""
	if scanner.Scan() {
		answer = strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
	if answer == "y" || answer == "yes" {
		return review.Decision{ReviewID: req.ID, Approved: true, DecidedBy: "user"}
	}
	return review.Decision{ReviewID: req.ID, Approved: false, Reason: "rejected by operator", DecidedBy: "user"}
}

// clipDetail bounds review detail for terminal display.
func clipDetail(detail string, limit int) string {
	if len(detail) <= limit {
		return detail
	}
	return fmt.Sprintf("%s\n... (%d more bytes)", detail[:limit], len(detail)-limit)
}
