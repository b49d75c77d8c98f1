package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stewardlab/steward/internal/config"
	"github.com/stewardlab/steward/pkg/models"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify configuration",
	Long: `View or modify steward configuration.

Configuration is read from ~/.config/steward/config.yaml (or
$XDG_CONFIG_HOME/steward/config.yaml), overlaid by a project
.steward.yaml found by walking up from the working directory, then by
STEWARD_* environment variables. 'config set' writes the user file.

Keys:
  anthropic.api_key           Anthropic API key (masked when shown)
  anthropic.use_bedrock       route calls through AWS Bedrock
  anthropic.aws_region        Bedrock region
  anthropic.aws_profile       AWS shared-config profile
  anthropic.max_tokens        default response token cap
  defaults.tier               planning tier
  defaults.max_iterations     reason/act cycles per attempt
  defaults.attempt_timeout    per-attempt wall clock
  defaults.same_tier_retries  retries at a tier before escalating
  budgets.tokens              session token budget (0 = unlimited)
  budgets.wall_clock          session wall-clock budget (0 = unlimited)
  budgets.actions             session tool-action budget (0 = unlimited)
  routing.max_in_flight       concurrent steps across the session
  review.timeout              auto-deny reviews after this long (0 = wait)
  tui.refresh_rate            watch view refresh interval
  tools.promoted              comma-separated promoted tool names

Per-capability routing ceilings (routing.per_capability) are set by
editing the YAML directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showConfig(cmd, nil)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show the effective configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showConfig,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key",
	Args:  cobra.ExactArgs(2),
	RunE:  setConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default user config file",
	RunE:  initConfig,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(args) == 1 {
		value, err := getConfigValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", strings.ToLower(args[0]), value)
		return nil
	}

	displayAllConfig(cfg)
	return nil
}

func displayAllConfig(cfg *config.Config) {
	fmt.Printf("User config: %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("Project config: %s\n", project)
	}

	key, _ := config.GetAPIKey(cfg)
	fmt.Println("\nanthropic:")
	fmt.Printf("  api_key: %s (%s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	fmt.Printf("  use_bedrock: %v\n", cfg.Anthropic.UseBedrock)
	if cfg.Anthropic.AWSRegion != "" {
		fmt.Printf("  aws_region: %s\n", cfg.Anthropic.AWSRegion)
	}
	if cfg.Anthropic.AWSProfile != "" {
		fmt.Printf("  aws_profile: %s\n", cfg.Anthropic.AWSProfile)
	}
	fmt.Printf("  max_tokens: %d\n", cfg.Anthropic.MaxTokens)

	fmt.Println("defaults:")
	fmt.Printf("  tier: %s\n", cfg.Defaults.Tier)
	fmt.Printf("  max_iterations: %d\n", cfg.Defaults.MaxIterations)
	fmt.Printf("  attempt_timeout: %s\n", cfg.Defaults.AttemptTimeout)
	fmt.Printf("  same_tier_retries: %d\n", cfg.Defaults.SameTierRetries)

	fmt.Println("budgets:")
	fmt.Printf("  tokens: %d\n", cfg.Budgets.Tokens)
	fmt.Printf("  wall_clock: %s\n", cfg.Budgets.WallClock)
	fmt.Printf("  actions: %d\n", cfg.Budgets.Actions)

	fmt.Println("routing:")
	fmt.Printf("  max_in_flight: %d\n", cfg.Routing.MaxInFlight)
	for capability, ceiling := range cfg.Routing.PerCapability {
		fmt.Printf("  per_capability.%s: %d\n", capability, ceiling)
	}

	fmt.Println("review:")
	fmt.Printf("  timeout: %s\n", cfg.Review.Timeout)

	fmt.Println("tui:")
	fmt.Printf("  refresh_rate: %s\n", cfg.TUI.RefreshRate)

	if len(cfg.Tools.Promoted) > 0 {
		fmt.Println("tools:")
		fmt.Printf("  promoted: %s\n", strings.Join(cfg.Tools.Promoted, ","))
	}
}

func setConfig(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	shown := value
	if strings.EqualFold(key, "anthropic.api_key") {
		shown = config.MaskAPIKey(value)
		if err := config.ValidateAPIKey(value); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}
	fmt.Printf("Set %s = %s\n", strings.ToLower(key), shown)
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	path := config.GetUserConfigPath()
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Set your API key with 'steward config set anthropic.api_key <key>' or export ANTHROPIC_API_KEY.")
	return nil
}

// getConfigValue reads one key from the loaded config.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		k, _ := config.GetAPIKey(cfg)
		return config.MaskAPIKey(k), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "anthropic.max_tokens":
		return strconv.FormatInt(cfg.Anthropic.MaxTokens, 10), nil
	case "defaults.tier":
		return cfg.Defaults.Tier, nil
	case "defaults.max_iterations":
		return strconv.Itoa(cfg.Defaults.MaxIterations), nil
	case "defaults.attempt_timeout":
		return cfg.Defaults.AttemptTimeout.String(), nil
	case "defaults.same_tier_retries":
		return strconv.Itoa(cfg.Defaults.SameTierRetries), nil
	case "budgets.tokens":
		return strconv.FormatInt(cfg.Budgets.Tokens, 10), nil
	case "budgets.wall_clock":
		return cfg.Budgets.WallClock.String(), nil
	case "budgets.actions":
		return strconv.FormatInt(cfg.Budgets.Actions, 10), nil
	case "routing.max_in_flight":
		return strconv.Itoa(cfg.Routing.MaxInFlight), nil
	case "review.timeout":
		return cfg.Review.Timeout.String(), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "tools.promoted":
		return strings.Join(cfg.Tools.Promoted, ","), nil
	default:
		return "", fmt.Errorf("unknown config key: %s (run 'steward config' to list keys)", key)
	}
}

// setConfigValue parses and assigns one key on the config.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %s", key, value)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "anthropic.max_tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Anthropic.MaxTokens = n
	case "defaults.tier":
		if !models.Tier(value).Valid() {
			return fmt.Errorf("invalid tier %q: want reflex, light, standard, or heavy", value)
		}
		cfg.Defaults.Tier = value
	case "defaults.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Defaults.MaxIterations = n
	case "defaults.attempt_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		cfg.Defaults.AttemptTimeout = d
	case "defaults.same_tier_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Defaults.SameTierRetries = n
	case "budgets.tokens":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Budgets.Tokens = n
	case "budgets.wall_clock":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		cfg.Budgets.WallClock = d
	case "budgets.actions":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Budgets.Actions = n
	case "routing.max_in_flight":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		cfg.Routing.MaxInFlight = n
	case "review.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		cfg.Review.Timeout = d
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		cfg.TUI.RefreshRate = d
	case "tools.promoted":
		var promoted []string
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				promoted = append(promoted, name)
			}
		}
		cfg.Tools.Promoted = promoted
	default:
		return fmt.Errorf("unknown config key: %s (run 'steward config' to list keys)", key)
	}
	return nil
}
