// Package config defines the top-level configuration for the edge bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by EDGEBOT_* environment
// variables.
type Config struct {
	Provider  ProviderConfig  `toml:"provider"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	FairPrice FairPriceConfig `toml:"fair_price"`
	Detect    DetectConfig    `toml:"detect"`
	Trade     TradeConfig     `toml:"trade"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ProviderConfig holds odds provider API parameters.
type ProviderConfig struct {
	BaseURL      string   `toml:"base_url"`
	APIKey       string   `toml:"api_key"`
	Timeout      duration `toml:"timeout"`
	Sports       []string `toml:"sports"`
	PollInterval duration `toml:"poll_interval"`
	// RateLimit caps provider requests per window across all instances.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// ExchangeConfig holds betting exchange API parameters. Credentials can be
// given directly or via an encrypted file produced by the crypto package.
type ExchangeConfig struct {
	BaseURL            string   `toml:"base_url"`
	WsURL              string   `toml:"ws_url"`
	APIKey             string   `toml:"api_key"`
	APISecret          string   `toml:"api_secret"`
	EncryptedCredsPath string   `toml:"encrypted_creds_path"`
	CredsPassword      string   `toml:"creds_password"`
	Timeout            duration `toml:"timeout"`
	RetryMaxAttempts   int      `toml:"retry_max_attempts"`
	RetryBaseDelay     duration `toml:"retry_base_delay"`
	RetryMaxDelay      duration `toml:"retry_max_delay"`
	StreamEnabled      bool     `toml:"stream_enabled"`
	CommissionRate     float64  `toml:"commission_rate"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	Retention       duration `toml:"retention"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// FairPriceConfig holds fair price model parameters.
type FairPriceConfig struct {
	MaxQuoteAge   duration `toml:"max_quote_age"`
	MinBookmakers int      `toml:"min_bookmakers"`
}

// DetectConfig holds edge detection parameters.
type DetectConfig struct {
	Interval    duration `toml:"interval"`
	Horizon     duration `toml:"horizon"`
	QuoteWindow duration `toml:"quote_window"`
	Markets     []string `toml:"markets"`
	MinEdgePP   float64  `toml:"min_edge_pp"`
	HighPP      float64  `toml:"high_pp"`
	MediumPP    float64  `toml:"medium_pp"`
	AlertTier   string   `toml:"alert_tier"`
}

// TradeConfig holds trade lifecycle parameters.
type TradeConfig struct {
	Strategy     string   `toml:"strategy"`
	Interval     duration `toml:"interval"`
	BackStake    float64  `toml:"back_stake"`
	MinBackPrice float64  `toml:"min_back_price"`
	MaxBackPrice float64  `toml:"max_back_price"`
	MinMargin    float64  `toml:"min_margin"`
	Cutoff       duration `toml:"cutoff"`
	OptInAhead   duration `toml:"opt_in_ahead"`
	PlaceAhead   duration `toml:"place_ahead"`
	SettleGrace  duration `toml:"settle_grace"`
	Market       string   `toml:"market"`
	Selection    string   `toml:"selection"`
	LockTTL      duration `toml:"lock_ttl"`
	Concurrency  int      `toml:"concurrency"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"detect": true,
	"trade":  true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTiers = map[string]bool{
	"":       true, // alerting disabled
	"low":    true,
	"medium": true,
	"high":   true,
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout:         duration{15 * time.Second},
			Sports:          []string{"football"},
			PollInterval:    duration{time.Minute},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Exchange: ExchangeConfig{
			Timeout:          duration{10 * time.Second},
			RetryMaxAttempts: 4,
			RetryBaseDelay:   duration{250 * time.Millisecond},
			RetryMaxDelay:    duration{5 * time.Second},
			CommissionRate:   0.02,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "edgebot",
			User:          "edgebot",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		S3: S3Config{
			Region:          "us-east-1",
			UseSSL:          true,
			Retention:       duration{30 * 24 * time.Hour},
			ArchiveInterval: duration{24 * time.Hour},
		},
		FairPrice: FairPriceConfig{
			MaxQuoteAge:   duration{10 * time.Minute},
			MinBookmakers: 2,
		},
		Detect: DetectConfig{
			Interval:    duration{time.Minute},
			Horizon:     duration{48 * time.Hour},
			QuoteWindow: duration{10 * time.Minute},
			Markets:     []string{"match_odds"},
			MinEdgePP:   2.0,
			HighPP:      5.0,
			MediumPP:    3.0,
			AlertTier:   "high",
		},
		Trade: TradeConfig{
			Strategy:     "back_lay_hedge",
			Interval:     duration{30 * time.Second},
			BackStake:    10,
			MinBackPrice: 1.5,
			MaxBackPrice: 4.0,
			MinMargin:    0.5,
			Cutoff:       duration{30 * time.Minute},
			OptInAhead:   duration{24 * time.Hour},
			PlaceAhead:   duration{2 * time.Hour},
			SettleGrace:  duration{6 * time.Hour},
			Market:       "match_odds",
			Selection:    "home",
			LockTTL:      duration{time.Minute},
			Concurrency:  8,
		},
		Mode:     "detect",
		LogLevel: "info",
	}
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detect, trade, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Provider
	if c.Provider.BaseURL == "" {
		errs = append(errs, "provider: base_url must not be empty")
	}
	if len(c.Provider.Sports) == 0 {
		errs = append(errs, "provider: at least one sport must be configured")
	}

	// Exchange. Credentials are required for trading modes.
	needsExchange := c.Mode == "trade" || c.Mode == "full"
	if needsExchange {
		if c.Exchange.BaseURL == "" {
			errs = append(errs, "exchange: base_url must not be empty for mode "+c.Mode)
		}
		hasDirect := c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
		if !hasDirect && c.Exchange.EncryptedCredsPath == "" {
			errs = append(errs, "exchange: either api_key/api_secret or encrypted_creds_path must be set for mode "+c.Mode)
		}
		if c.Exchange.EncryptedCredsPath != "" && c.Exchange.CredsPassword == "" {
			errs = append(errs, "exchange: creds_password is required when encrypted_creds_path is set")
		}
		if c.Exchange.CommissionRate < 0 || c.Exchange.CommissionRate >= 1 {
			errs = append(errs, fmt.Sprintf("exchange: commission_rate must be in [0, 1), got %v", c.Exchange.CommissionRate))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when s3 is enabled")
		}
		if c.S3.Retention.Duration <= 0 {
			errs = append(errs, "s3: retention must be positive")
		}
	}

	// Fair price
	if c.FairPrice.MinBookmakers < 2 {
		errs = append(errs, fmt.Sprintf("fair_price: min_bookmakers must be >= 2, got %d", c.FairPrice.MinBookmakers))
	}
	if c.FairPrice.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "fair_price: max_quote_age must be positive")
	}

	// Detect
	if c.Detect.MinEdgePP <= 0 {
		errs = append(errs, "detect: min_edge_pp must be positive")
	}
	if c.Detect.HighPP < c.Detect.MediumPP {
		errs = append(errs, fmt.Sprintf("detect: high_pp (%v) must be >= medium_pp (%v)", c.Detect.HighPP, c.Detect.MediumPP))
	}
	if !validTiers[strings.ToLower(c.Detect.AlertTier)] {
		errs = append(errs, fmt.Sprintf("detect: unknown alert_tier %q (valid: low, medium, high, or empty)", c.Detect.AlertTier))
	}

	// Trade
	if needsExchange {
		if c.Trade.BackStake <= 0 {
			errs = append(errs, fmt.Sprintf("trade: back_stake must be positive, got %v", c.Trade.BackStake))
		}
		if c.Trade.MinBackPrice <= 1 {
			errs = append(errs, fmt.Sprintf("trade: min_back_price must exceed 1.0, got %v", c.Trade.MinBackPrice))
		}
		if c.Trade.MaxBackPrice < c.Trade.MinBackPrice {
			errs = append(errs, fmt.Sprintf("trade: max_back_price (%v) must be >= min_back_price (%v)", c.Trade.MaxBackPrice, c.Trade.MinBackPrice))
		}
		if c.Trade.MinMargin <= 0 {
			errs = append(errs, "trade: min_margin must be positive")
		}
		if c.Trade.Cutoff.Duration <= 0 {
			errs = append(errs, "trade: cutoff must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
