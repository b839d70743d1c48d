package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/edgebot/internal/blob/s3"
	"github.com/alanyoungcy/edgebot/internal/cache/redis"
	"github.com/alanyoungcy/edgebot/internal/config"
	"github.com/alanyoungcy/edgebot/internal/crypto"
	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/exchange"
	"github.com/alanyoungcy/edgebot/internal/fairprice"
	"github.com/alanyoungcy/edgebot/internal/ingest"
	"github.com/alanyoungcy/edgebot/internal/notify"
	"github.com/alanyoungcy/edgebot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	EventStore     domain.EventStore
	QuoteStore     domain.QuoteStore
	CandidateStore domain.CandidateStore
	TradeStore     domain.TradeStore
	BetStore       domain.BetStore
	AuditStore     domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// External feeds and gateways
	Provider *ingest.Provider
	Gateway  domain.ExchangeGateway

	// Pricing
	Model *fairprice.Model

	// Notifications
	Notifier *notify.Notifier
}

// needsExchange returns true for modes that place orders.
func needsExchange(mode string) bool {
	switch mode {
	case "trade", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	quoteStore := postgres.NewQuoteStore(pool)
	candidateStore := postgres.NewCandidateStore(pool)
	auditStore := postgres.NewAuditStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)
	deps.QuoteStore = quoteStore
	deps.CandidateStore = candidateStore
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.BetStore = postgres.NewBetStore(pool)
	deps.AuditStore = auditStore

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiterWithBudget(
		redisClient,
		cfg.Provider.RateLimit,
		cfg.Provider.RateLimitWindow.Duration,
	)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (archiver) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, quoteStore, candidateStore, auditStore)
	}

	// --- Odds provider ---
	deps.Provider = ingest.NewProvider(ingest.ProviderConfig{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout.Duration,
	})

	// --- Exchange gateway (only for modes that trade) ---
	if needsExchange(cfg.Mode) {
		creds, err := crypto.LoadCredentials(crypto.CredentialConfig{
			APIKey:        cfg.Exchange.APIKey,
			APISecret:     cfg.Exchange.APISecret,
			EncryptedPath: cfg.Exchange.EncryptedCredsPath,
			Password:      cfg.Exchange.CredsPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: exchange credentials: %w", err)
		}
		deps.Gateway = exchange.NewClient(exchange.ClientConfig{
			BaseURL:   cfg.Exchange.BaseURL,
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			Timeout:   cfg.Exchange.Timeout.Duration,
			Retry: exchange.RetryPolicy{
				MaxAttempts: cfg.Exchange.RetryMaxAttempts,
				BaseDelay:   cfg.Exchange.RetryBaseDelay.Duration,
				MaxDelay:    cfg.Exchange.RetryMaxDelay.Duration,
			},
		})
	}

	// --- Fair price model ---
	deps.Model = fairprice.New(fairprice.Config{
		MaxQuoteAge:   cfg.FairPrice.MaxQuoteAge.Duration,
		MinBookmakers: cfg.FairPrice.MinBookmakers,
	})

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
