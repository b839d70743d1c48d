package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Provider.BaseURL = "https://odds.example.com"
	cfg.Exchange.BaseURL = "https://api.exchange.example.com"
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	return cfg
}

func TestDefaultsValidateInDetectMode(t *testing.T) {
	cfg := Defaults()
	cfg.Provider.BaseURL = "https://odds.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "backtest" }, "unknown mode"},
		{"missing provider url", func(c *Config) { c.Provider.BaseURL = "" }, "base_url"},
		{"trade mode without credentials", func(c *Config) {
			c.Mode = "trade"
			c.Exchange.APIKey = ""
			c.Exchange.APISecret = ""
		}, "encrypted_creds_path"},
		{"quorum below two", func(c *Config) { c.FairPrice.MinBookmakers = 1 }, "min_bookmakers"},
		{"inverted tiers", func(c *Config) {
			c.Detect.HighPP = 2
			c.Detect.MediumPP = 3
		}, "high_pp"},
		{"trade stake", func(c *Config) {
			c.Mode = "trade"
			c.Trade.BackStake = 0
		}, "back_stake"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadAppliesFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "trade"

[provider]
base_url = "https://odds.example.com"

[exchange]
base_url = "https://api.exchange.example.com"
api_key = "file-key"
api_secret = "file-secret"

[detect]
interval = "2m"
min_edge_pp = 3.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("EDGEBOT_EXCHANGE_API_KEY", "env-key")
	t.Setenv("EDGEBOT_TRADE_BACK_STAKE", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "trade" {
		t.Fatalf("mode = %q, want trade", cfg.Mode)
	}
	if cfg.Detect.Interval.Duration != 2*time.Minute {
		t.Fatalf("detect interval = %v, want 2m", cfg.Detect.Interval.Duration)
	}
	if cfg.Detect.MinEdgePP != 3.5 {
		t.Fatalf("min_edge_pp = %v, want 3.5", cfg.Detect.MinEdgePP)
	}
	// Env beats file; untouched fields keep defaults.
	if cfg.Exchange.APIKey != "env-key" {
		t.Fatalf("api_key = %q, want env-key", cfg.Exchange.APIKey)
	}
	if cfg.Exchange.APISecret != "file-secret" {
		t.Fatalf("api_secret = %q, want file-secret", cfg.Exchange.APISecret)
	}
	if cfg.Trade.BackStake != 25 {
		t.Fatalf("back_stake = %v, want 25", cfg.Trade.BackStake)
	}
	if cfg.Postgres.Port != 5432 {
		t.Fatalf("postgres port = %d, want default 5432", cfg.Postgres.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
