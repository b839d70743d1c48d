package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EDGEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Provider ──
	setStr(&cfg.Provider.BaseURL, "EDGEBOT_PROVIDER_BASE_URL")
	setStr(&cfg.Provider.APIKey, "EDGEBOT_PROVIDER_API_KEY")
	setDuration(&cfg.Provider.Timeout, "EDGEBOT_PROVIDER_TIMEOUT")
	setStringSlice(&cfg.Provider.Sports, "EDGEBOT_PROVIDER_SPORTS")
	setDuration(&cfg.Provider.PollInterval, "EDGEBOT_PROVIDER_POLL_INTERVAL")
	setInt(&cfg.Provider.RateLimit, "EDGEBOT_PROVIDER_RATE_LIMIT")
	setDuration(&cfg.Provider.RateLimitWindow, "EDGEBOT_PROVIDER_RATE_LIMIT_WINDOW")

	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "EDGEBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "EDGEBOT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.APIKey, "EDGEBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "EDGEBOT_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedCredsPath, "EDGEBOT_EXCHANGE_ENCRYPTED_CREDS_PATH")
	setStr(&cfg.Exchange.CredsPassword, "EDGEBOT_EXCHANGE_CREDS_PASSWORD")
	setDuration(&cfg.Exchange.Timeout, "EDGEBOT_EXCHANGE_TIMEOUT")
	setInt(&cfg.Exchange.RetryMaxAttempts, "EDGEBOT_EXCHANGE_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Exchange.RetryBaseDelay, "EDGEBOT_EXCHANGE_RETRY_BASE_DELAY")
	setDuration(&cfg.Exchange.RetryMaxDelay, "EDGEBOT_EXCHANGE_RETRY_MAX_DELAY")
	setBool(&cfg.Exchange.StreamEnabled, "EDGEBOT_EXCHANGE_STREAM_ENABLED")
	setFloat64(&cfg.Exchange.CommissionRate, "EDGEBOT_EXCHANGE_COMMISSION_RATE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "EDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EDGEBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "EDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EDGEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EDGEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EDGEBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.Retention, "EDGEBOT_S3_RETENTION")
	setDuration(&cfg.S3.ArchiveInterval, "EDGEBOT_S3_ARCHIVE_INTERVAL")

	// ── Fair price ──
	setDuration(&cfg.FairPrice.MaxQuoteAge, "EDGEBOT_FAIR_PRICE_MAX_QUOTE_AGE")
	setInt(&cfg.FairPrice.MinBookmakers, "EDGEBOT_FAIR_PRICE_MIN_BOOKMAKERS")

	// ── Detect ──
	setDuration(&cfg.Detect.Interval, "EDGEBOT_DETECT_INTERVAL")
	setDuration(&cfg.Detect.Horizon, "EDGEBOT_DETECT_HORIZON")
	setDuration(&cfg.Detect.QuoteWindow, "EDGEBOT_DETECT_QUOTE_WINDOW")
	setStringSlice(&cfg.Detect.Markets, "EDGEBOT_DETECT_MARKETS")
	setFloat64(&cfg.Detect.MinEdgePP, "EDGEBOT_DETECT_MIN_EDGE_PP")
	setFloat64(&cfg.Detect.HighPP, "EDGEBOT_DETECT_HIGH_PP")
	setFloat64(&cfg.Detect.MediumPP, "EDGEBOT_DETECT_MEDIUM_PP")
	setStr(&cfg.Detect.AlertTier, "EDGEBOT_DETECT_ALERT_TIER")

	// ── Trade ──
	setStr(&cfg.Trade.Strategy, "EDGEBOT_TRADE_STRATEGY")
	setDuration(&cfg.Trade.Interval, "EDGEBOT_TRADE_INTERVAL")
	setFloat64(&cfg.Trade.BackStake, "EDGEBOT_TRADE_BACK_STAKE")
	setFloat64(&cfg.Trade.MinBackPrice, "EDGEBOT_TRADE_MIN_BACK_PRICE")
	setFloat64(&cfg.Trade.MaxBackPrice, "EDGEBOT_TRADE_MAX_BACK_PRICE")
	setFloat64(&cfg.Trade.MinMargin, "EDGEBOT_TRADE_MIN_MARGIN")
	setDuration(&cfg.Trade.Cutoff, "EDGEBOT_TRADE_CUTOFF")
	setDuration(&cfg.Trade.OptInAhead, "EDGEBOT_TRADE_OPT_IN_AHEAD")
	setDuration(&cfg.Trade.PlaceAhead, "EDGEBOT_TRADE_PLACE_AHEAD")
	setDuration(&cfg.Trade.SettleGrace, "EDGEBOT_TRADE_SETTLE_GRACE")
	setStr(&cfg.Trade.Market, "EDGEBOT_TRADE_MARKET")
	setStr(&cfg.Trade.Selection, "EDGEBOT_TRADE_SELECTION")
	setDuration(&cfg.Trade.LockTTL, "EDGEBOT_TRADE_LOCK_TTL")
	setInt(&cfg.Trade.Concurrency, "EDGEBOT_TRADE_CONCURRENCY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EDGEBOT_NOTIFY_EVENTS")

	// ── Top level ──
	setStr(&cfg.Mode, "EDGEBOT_MODE")
	setStr(&cfg.LogLevel, "EDGEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
