// Package config handles configuration loading and management for Steward.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stewardlab/steward/pkg/models"
)

// Config holds all configuration for Steward.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Budgets   BudgetsConfig   `mapstructure:"budgets"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Review    ReviewConfig    `mapstructure:"review"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic backend settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes completions through AWS Bedrock instead of the
	// direct API. The API key is not used on that path.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// MaxTokens caps a single completion response.
	MaxTokens int64 `mapstructure:"max_tokens"`
}

// DefaultsConfig holds default values for Steward sessions.
type DefaultsConfig struct {
	// Tier is the capability tier new plan steps start at.
	Tier string `mapstructure:"tier"`
	// MaxIterations caps reasoning turns within one attempt.
	MaxIterations int `mapstructure:"max_iterations"`
	// AttemptTimeout bounds one attempt's wall time. Zero disables it.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// SameTierRetries is how many extra attempts a step gets at its
	// current tier before escalating.
	SameTierRetries int `mapstructure:"same_tier_retries"`
}

// BudgetsConfig holds per-session budget limits. Zero means unlimited
// in every dimension.
type BudgetsConfig struct {
	Tokens    int64         `mapstructure:"tokens"`
	WallClock time.Duration `mapstructure:"wall_clock"`
	Actions   int64         `mapstructure:"actions"`
}

// RoutingConfig holds executor routing limits.
type RoutingConfig struct {
	// MaxInFlight bounds concurrent assignments across all executors.
	MaxInFlight int `mapstructure:"max_in_flight"`
	// PerCapability bounds concurrent assignments per capability tag.
	PerCapability map[string]int `mapstructure:"per_capability"`
}

// ReviewConfig holds human review settings.
type ReviewConfig struct {
	// Timeout bounds how long a pending review waits for a decision.
	// Zero waits indefinitely.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ToolsConfig holds tool registry settings.
type ToolsConfig struct {
	// Promoted lists experimental tools promoted into the standing set.
	// `steward tools promote` appends here.
	Promoted []string `mapstructure:"promoted"`
}

// TUIConfig holds watch-mode display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// TierConfig holds configuration for a single capability tier loaded
// from YAML.
type TierConfig struct {
	// Tier is the tier name (reflex, light, standard, heavy).
	Tier string `mapstructure:"tier"`
	// Model pins the model identifier for this tier. Empty uses the
	// backend's default for the tier.
	Model string `mapstructure:"model"`
	// MaxTokens caps a single completion response at this tier.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// MaxIterations caps reasoning turns per attempt at this tier.
	MaxIterations int `mapstructure:"max_iterations"`
	// Timeout is the per-attempt timeout at this tier.
	Timeout time.Duration `mapstructure:"timeout"`
}

// TierConfigs holds all tier configurations.
type TierConfigs struct {
	Reflex   *TierConfig
	Light    *TierConfig
	Standard *TierConfig
	Heavy    *TierConfig
}

// Get returns the tier config for the given tier.
func (tc *TierConfigs) Get(tier models.Tier) *TierConfig {
	switch tier {
	case models.TierReflex:
		return tc.Reflex
	case models.TierLight:
		return tc.Light
	case models.TierStandard:
		return tc.Standard
	case models.TierHeavy:
		return tc.Heavy
	default:
		return tc.Standard // Default to standard
	}
}

// Models collects the pinned model identifiers keyed by tier. Tiers
// without a pinned model are omitted so the backend falls back to its
// own defaults.
func (tc *TierConfigs) Models() map[models.Tier]string {
	out := make(map[models.Tier]string)
	for tier, cfg := range map[models.Tier]*TierConfig{
		models.TierReflex:   tc.Reflex,
		models.TierLight:    tc.Light,
		models.TierStandard: tc.Standard,
		models.TierHeavy:    tc.Heavy,
	} {
		if cfg != nil && cfg.Model != "" {
			out[tier] = cfg.Model
		}
	}
	return out
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, STEWARD_*)
// 2. Project config (.steward.yaml in current directory or parent)
// 3. User config (~/.config/steward/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides: STEWARD_BUDGETS_TOKENS and friends
	v.SetEnvPrefix("STEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific environment variables
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "STEWARD_ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("defaults.tier", cfg.Defaults.Tier)
	v.Set("defaults.max_iterations", cfg.Defaults.MaxIterations)
	v.Set("defaults.attempt_timeout", cfg.Defaults.AttemptTimeout.String())
	v.Set("defaults.same_tier_retries", cfg.Defaults.SameTierRetries)
	v.Set("budgets.tokens", cfg.Budgets.Tokens)
	v.Set("budgets.wall_clock", cfg.Budgets.WallClock.String())
	v.Set("budgets.actions", cfg.Budgets.Actions)
	v.Set("routing.max_in_flight", cfg.Routing.MaxInFlight)
	v.Set("routing.per_capability", cfg.Routing.PerCapability)
	v.Set("review.timeout", cfg.Review.Timeout.String())
	v.Set("tools.promoted", cfg.Tools.Promoted)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	// Backend defaults
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", 8192)

	// Session defaults
	v.SetDefault("defaults.tier", "light")
	v.SetDefault("defaults.max_iterations", 10)
	v.SetDefault("defaults.attempt_timeout", "10m")
	v.SetDefault("defaults.same_tier_retries", 1)

	// Budget defaults
	v.SetDefault("budgets.tokens", 200000)
	v.SetDefault("budgets.wall_clock", "30m")
	v.SetDefault("budgets.actions", 20)

	// Routing defaults
	v.SetDefault("routing.max_in_flight", 3)

	// Review defaults: zero waits indefinitely
	v.SetDefault("review.timeout", "0s")

	// TUI defaults
	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for Steward.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "steward")
	}

	// Fall back to ~/.config/steward
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "steward")
	}
	return filepath.Join(home, ".config", "steward")
}

// findProjectConfig searches for .steward.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".steward.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			APIKey:    "",
			MaxTokens: 8192,
		},
		Defaults: DefaultsConfig{
			Tier:            "light",
			MaxIterations:   10,
			AttemptTimeout:  10 * time.Minute,
			SameTierRetries: 1,
		},
		Budgets: BudgetsConfig{
			Tokens:    200000,
			WallClock: 30 * time.Minute,
			Actions:   20,
		},
		Routing: RoutingConfig{
			MaxInFlight: 3,
		},
		Review: ReviewConfig{
			Timeout: 0,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// LoadTierConfigs loads tier configurations from the configs/ directory.
// It looks for reflex.yaml, light.yaml, standard.yaml and heavy.yaml.
// The configsDir parameter specifies the directory containing the YAML files.
// If configsDir is empty, it defaults to "configs" relative to the current directory.
func LoadTierConfigs(configsDir string) (*TierConfigs, error) {
	if configsDir == "" {
		configsDir = "configs"
	}

	tiers := &TierConfigs{}

	reflexCfg, err := loadTierConfig(filepath.Join(configsDir, "reflex.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load reflex config: %w", err)
	}
	tiers.Reflex = reflexCfg

	lightCfg, err := loadTierConfig(filepath.Join(configsDir, "light.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load light config: %w", err)
	}
	tiers.Light = lightCfg

	standardCfg, err := loadTierConfig(filepath.Join(configsDir, "standard.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load standard config: %w", err)
	}
	tiers.Standard = standardCfg

	heavyCfg, err := loadTierConfig(filepath.Join(configsDir, "heavy.yaml"))
	if err != nil {
		return nil, fmt.Errorf("load heavy config: %w", err)
	}
	tiers.Heavy = heavyCfg

	return tiers, nil
}

// loadTierConfig loads a single tier configuration from a YAML file.
func loadTierConfig(path string) (*TierConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &TierConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultTierConfigs returns hardcoded default tier configurations.
// This is used as a fallback when YAML files are not available. Model
// identifiers are left empty so the backend picks its own default for
// each tier.
func DefaultTierConfigs() *TierConfigs {
	return &TierConfigs{
		Reflex: &TierConfig{
			Tier:          "reflex",
			MaxTokens:     2048,
			MaxIterations: 4,
			Timeout:       2 * time.Minute,
		},
		Light: &TierConfig{
			Tier:          "light",
			MaxTokens:     4096,
			MaxIterations: 8,
			Timeout:       5 * time.Minute,
		},
		Standard: &TierConfig{
			Tier:          "standard",
			MaxTokens:     8192,
			MaxIterations: 10,
			Timeout:       10 * time.Minute,
		},
		Heavy: &TierConfig{
			Tier:          "heavy",
			MaxTokens:     16384,
			MaxIterations: 16,
			Timeout:       20 * time.Minute,
		},
	}
}
