package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stewardlab/steward/internal/config"
)

func TestSetConfigValueRoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{key: "anthropic.use_bedrock", value: "true", want: "true"},
		{key: "anthropic.aws_region", value: "us-west-2", want: "us-west-2"},
		{key: "anthropic.max_tokens", value: "4096", want: "4096"},
		{key: "defaults.tier", value: "standard", want: "standard"},
		{key: "defaults.max_iterations", value: "12", want: "12"},
		{key: "defaults.attempt_timeout", value: "5m", want: "5m0s"},
		{key: "defaults.same_tier_retries", value: "2", want: "2"},
		{key: "budgets.tokens", value: "500000", want: "500000"},
		{key: "budgets.wall_clock", value: "1h", want: "1h0m0s"},
		{key: "budgets.actions", value: "40", want: "40"},
		{key: "routing.max_in_flight", value: "5", want: "5"},
		{key: "review.timeout", value: "90s", want: "1m30s"},
		{key: "tui.refresh_rate", value: "250ms", want: "250ms"},
		{key: "tools.promoted", value: "fetch_json, summarize", want: "fetch_json,summarize"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue(%q, %q) error: %v", tt.key, tt.value, err)
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue(%q) error: %v", tt.key, err)
			}
			if got != tt.want {
				t.Errorf("getConfigValue(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSetConfigValueRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown key", key: "no.such.key", value: "1"},
		{name: "bad boolean", key: "anthropic.use_bedrock", value: "maybe"},
		{name: "bad integer", key: "budgets.tokens", value: "lots"},
		{name: "bad duration", key: "budgets.wall_clock", value: "soon"},
		{name: "bad tier", key: "defaults.tier", value: "mega"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if err := setConfigValue(cfg, tt.key, tt.value); err == nil {
				t.Errorf("setConfigValue(%q, %q) expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestSetConfigValueCaseInsensitiveKeys(t *testing.T) {
	cfg := config.Default()
	if err := setConfigValue(cfg, "Defaults.Tier", "heavy"); err != nil {
		t.Fatalf("setConfigValue with mixed-case key: %v", err)
	}
	if cfg.Defaults.Tier != "heavy" {
		t.Errorf("tier = %q, want heavy", cfg.Defaults.Tier)
	}
}

func TestGetConfigValueMasksAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	got, err := getConfigValue(cfg, "anthropic.api_key")
	if err != nil {
		t.Fatalf("getConfigValue(anthropic.api_key) error: %v", err)
	}
	if strings.Contains(got, "0123456789abcdef") {
		t.Errorf("api key should be masked, got %q", got)
	}
	if !strings.HasPrefix(got, "sk-ant-") {
		t.Errorf("masked key should keep its prefix, got %q", got)
	}
}

func TestSetConfigValueParsesDurations(t *testing.T) {
	cfg := config.Default()
	if err := setConfigValue(cfg, "defaults.attempt_timeout", "150s"); err != nil {
		t.Fatalf("setConfigValue: %v", err)
	}
	if cfg.Defaults.AttemptTimeout != 150*time.Second {
		t.Errorf("attempt_timeout = %v, want 2m30s", cfg.Defaults.AttemptTimeout)
	}
}
