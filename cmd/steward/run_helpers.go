package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/stewardlab/steward/internal/backend"
	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/internal/review"
	"github.com/stewardlab/steward/internal/router"
	"github.com/stewardlab/steward/internal/state"
	"github.com/stewardlab/steward/internal/supervisor"
	"github.com/stewardlab/steward/internal/tools"
	"github.com/stewardlab/steward/pkg/models"
)

// defaultCapabilities is the capability vocabulary the planner tags steps
// with. The default executor set covers all of them at every tier.
var defaultCapabilities = []string{"research", "analysis", "writing", "coding", "general"}

// builtinScopes covers the scopes the built-in tool set declares.
var builtinScopes = []string{"fs:read", "fs:write", "proc:exec", "net:http"}

// maxConcurrentForTier caps how many steps one tier's executor works at
// once. Cheap tiers fan out; the heavy tier runs one step at a time.
func maxConcurrentForTier(tier models.Tier) int {
	switch tier {
	case models.TierReflex:
		return 4
	case models.TierLight:
		return 3
	case models.TierStandard:
		return 2
	case models.TierHeavy:
		return 1
	default:
		return 1
	}
}

// defaultExecutors builds a registry with one general-purpose executor per
// tier, so escalation always has somewhere to go.
func defaultExecutors() *router.Registry {
	reg := router.NewRegistry()
	for _, tier := range models.Ladder() {
		// Register only rejects malformed profiles; this set is fixed.
		_ = reg.Register(models.Executor{
			ID:            "steward-" + string(tier),
			Capabilities:  defaultCapabilities,
			Tier:          tier,
			Scopes:        builtinScopes,
			MaxConcurrent: maxConcurrentForTier(tier),
		})
	}
	return reg
}

// buildBackend constructs the reasoning backend from configuration. The
// Bedrock path authenticates through the AWS environment; the direct path
// needs an API key.
func buildBackend(cfg *config.Config, tiers *config.TierConfigs) (backend.Backend, error) {
	bcfg := backend.Config{
		UseBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:  cfg.Anthropic.AWSRegion,
		AWSProfile: cfg.Anthropic.AWSProfile,
		Models:     tiers.Models(),
		MaxTokens:  cfg.Anthropic.MaxTokens,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("no API key: set ANTHROPIC_API_KEY or run 'steward config set anthropic.api_key <key>'")
		}
		bcfg.APIKey = key
	}
	b, err := backend.NewAnthropic(bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return b, nil
}

// newSupervisor assembles the full stack: state store, backend, tool
// dispatcher, executor registry, review manager, and the supervisor wired
// over them. The returned cleanup closes what was opened.
func newSupervisor(cfg *config.Config, workDir string, verbose bool, extra ...supervisor.Option) (*supervisor.Supervisor, *review.Manager, func(), error) {
	tiers, err := config.LoadTierConfigs(filepath.Join(workDir, "configs"))
	if err != nil {
		tiers = config.DefaultTierConfigs()
	}

	b, err := buildBackend(cfg, tiers)
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := state.OpenProject(workDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("migrate state database: %w", err)
	}

	registry := tools.NewBuiltinRegistry(workDir, tools.NewExecRunner())
	applyPromotions(registry, cfg.Tools.Promoted, verbose)
	dispatcher := tools.NewDispatcher(registry)

	var reviewOpts []review.ManagerOption
	if cfg.Review.Timeout > 0 {
		reviewOpts = append(reviewOpts, review.WithTimeout(cfg.Review.Timeout))
	}
	reviews := review.NewManager(reviewOpts...)

	logger := supervisor.NopLogger()
	if verbose {
		l, err := supervisor.NewDebugLogger(filepath.Join(workDir, ".steward", "debug.log"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
		} else {
			logger = l
		}
	}

	opts := []supervisor.Option{
		supervisor.WithStore(db),
		supervisor.WithRegistry(defaultExecutors()),
		supervisor.WithCeilings(router.Ceilings{
			Global:        cfg.Routing.MaxInFlight,
			PerCapability: cfg.Routing.PerCapability,
		}),
		supervisor.WithBudget(cfg.Budgets.Tokens, cfg.Budgets.WallClock),
		supervisor.WithActionBudget(cfg.Budgets.Actions),
		supervisor.WithReviewChannel(reviews),
		supervisor.WithMaxIterations(cfg.Defaults.MaxIterations),
		supervisor.WithAttemptTimeout(cfg.Defaults.AttemptTimeout),
		supervisor.WithSameTierRetries(cfg.Defaults.SameTierRetries),
		supervisor.WithLogger(logger),
	}
	opts = append(opts, extra...)

	sup, err := supervisor.New(supervisor.RequiredConfig{Backend: b, Tools: dispatcher}, opts...)
	if err != nil {
		db.Close()
		logger.Close()
		return nil, nil, nil, fmt.Errorf("create supervisor: %w", err)
	}

	cleanup := func() {
		db.Close()
		logger.Close()
	}
	return sup, reviews, cleanup, nil
}

// applyPromotions moves config-promoted tools into the standing set. Names
// that are not registered are left for runtime-forged tools to claim.
func applyPromotions(registry *tools.Registry, promoted []string, verbose bool) {
	for _, name := range promoted {
		if _, ok := registry.Get(name); !ok {
			continue
		}
		if err := registry.Promote(name); err != nil && verbose {
			fmt.Printf("[DEBUG] promote %s: %v\n", name, err)
		}
	}
}

// printReport renders the terminal report after a session ends.
func printReport(r *supervisor.Report) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Printf("Session %s: %s\n", shortSessionID(r.SessionID), r.State)
	if r.Reason != "" {
		fmt.Printf("  %s\n", r.Reason)
	}
	fmt.Println()

	for _, step := range r.Steps {
		fmt.Printf("%s %s  %s  %s\n", stepGlyph(step.Status), step.ID, step.Description, attemptSummary(step))
		switch {
		case step.Status == models.StepDone && step.Answer != "":
			printIndented(step.Answer)
		case step.BlockedReason != "":
			fmt.Printf("      blocked: %s\n", step.BlockedReason)
		case step.Error != "":
			fmt.Printf("      error: %s\n", step.Error)
		}
	}

	fmt.Println()
	fmt.Printf("%d done, %d failed · %s tokens · %d actions · %s\n",
		r.StepsDone, r.StepsFailed,
		formatNumber(r.TokensUsed), r.ActionsUsed,
		formatDuration(r.Elapsed))

	if len(r.Followups) > 0 {
		fmt.Println("\nQueued follow-ups:")
		for _, f := range r.Followups {
			fmt.Printf("  - %s\n", f)
		}
	}
}

// attemptSummary renders a step's attempt count and tier path, for example
// "(3 attempts, light → standard)".
func attemptSummary(step supervisor.StepReport) string {
	if step.Attempts == 0 {
		return ""
	}
	word := "attempts"
	if step.Attempts == 1 {
		word = "attempt"
	}
	tiers := make([]string, 0, len(step.Tiers))
	for _, t := range step.Tiers {
		if len(tiers) == 0 || tiers[len(tiers)-1] != string(t) {
			tiers = append(tiers, string(t))
		}
	}
	return fmt.Sprintf("(%d %s, %s)", step.Attempts, word, strings.Join(tiers, " → "))
}

func stepGlyph(status models.StepStatus) string {
	switch status {
	case models.StepDone:
		return color.GreenString("✓")
	case models.StepFailed:
		return color.RedString("✗")
	default:
		return color.YellowString("·")
	}
}

func printIndented(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Printf("      %s\n", line)
	}
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
