package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/edgebot/internal/config"
	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/edge"
	"github.com/alanyoungcy/edgebot/internal/exchange"
	"github.com/alanyoungcy/edgebot/internal/ingest"
	"github.com/alanyoungcy/edgebot/internal/lifecycle"
	"github.com/alanyoungcy/edgebot/internal/scheduler"
)

// fixtureSyncInterval is how often the upcoming-fixture board is refreshed.
// Fixtures change far more slowly than quotes, so this is not configurable.
const fixtureSyncInterval = 15 * time.Minute

// DetectMode runs ingestion and edge detection only: fixtures and quotes are
// polled from the provider and candidates are produced, but no orders are
// placed.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	sched := scheduler.New(deps.LockManager, a.logger)
	a.addIngestCycles(sched, deps)
	a.addDetectCycle(sched, deps)
	a.addArchiveCycle(sched, deps)

	a.logger.Info("detect mode starting")
	return sched.Run(ctx)
}

// TradeMode runs the automated trade lifecycle against the exchange:
// fixtures are synced so the monitor can opt in, the monitor cycle drives
// every trade through its state machine, and the market-data stream keeps
// the price cache warm. Quote ingestion and edge detection are not running;
// this mode pairs with a detect-mode instance sharing the same database.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	sched := scheduler.New(deps.LockManager, a.logger)
	a.addFixtureCycle(sched, deps)
	if err := a.addTradeCycle(sched, deps); err != nil {
		return err
	}
	a.addArchiveCycle(sched, deps)

	a.logger.Info("trade mode starting")
	return a.runWithStream(ctx, sched, deps)
}

// FullMode runs every subsystem in one process: ingestion, detection, the
// trade lifecycle, the market-data stream, and archival.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	sched := scheduler.New(deps.LockManager, a.logger)
	a.addIngestCycles(sched, deps)
	a.addDetectCycle(sched, deps)
	if err := a.addTradeCycle(sched, deps); err != nil {
		return err
	}
	a.addArchiveCycle(sched, deps)

	a.logger.Info("full mode starting")
	return a.runWithStream(ctx, sched, deps)
}

// addIngestCycles registers the fixture sync and quote poll cycles. Both are
// exclusive so a fleet of instances bills the provider only once per tick.
func (a *App) addIngestCycles(sched *scheduler.Scheduler, deps *Dependencies) {
	a.addFixtureCycle(sched, deps)

	ingestor := ingest.NewIngestor(deps.QuoteStore, deps.AuditStore, a.logger)
	poller := ingest.NewQuotePoller(deps.Provider, ingestor, deps.RateLimiter, a.cfg.Provider.Sports, a.logger)
	sched.Add(scheduler.Cycle{
		Name:      "quote_poll",
		Interval:  a.cfg.Provider.PollInterval.Duration,
		Run:       poller.Run,
		Exclusive: true,
	})
}

// addFixtureCycle registers the upcoming-fixture sync cycle.
func (a *App) addFixtureCycle(sched *scheduler.Scheduler, deps *Dependencies) {
	syncer := ingest.NewFixtureSyncer(deps.Provider, deps.EventStore, a.logger)
	sched.Add(scheduler.Cycle{
		Name:      "fixture_sync",
		Interval:  fixtureSyncInterval,
		Run:       syncer.Run,
		Exclusive: true,
	})
}

// addDetectCycle registers the edge detection cycle.
func (a *App) addDetectCycle(sched *scheduler.Scheduler, deps *Dependencies) {
	detector := edge.New(deps.Model, edge.Config{
		MinEdgePP: a.cfg.Detect.MinEdgePP,
		HighPP:    a.cfg.Detect.HighPP,
		MediumPP:  a.cfg.Detect.MediumPP,
	}, a.logger)

	runner := edge.NewRunner(
		deps.EventStore,
		deps.QuoteStore,
		deps.CandidateStore,
		deps.SignalBus,
		deps.Notifier,
		detector,
		edge.RunnerConfig{
			Horizon:     a.cfg.Detect.Horizon.Duration,
			QuoteWindow: a.cfg.Detect.QuoteWindow.Duration,
			Markets:     a.cfg.Detect.Markets,
			AlertTier:   domain.Tier(a.cfg.Detect.AlertTier),
		},
		a.logger,
	)

	sched.Add(scheduler.Cycle{
		Name:      "detect",
		Interval:  a.cfg.Detect.Interval.Duration,
		Run:       runner.RunCycle,
		Exclusive: true,
	})
}

// NewEngine builds the lifecycle engine from configuration. The monitor
// cycle and the manual trade commands share it.
func NewEngine(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *lifecycle.Engine {
	return lifecycle.NewEngine(
		deps.TradeStore,
		deps.Gateway,
		deps.PriceCache,
		deps.AuditStore,
		lifecycle.Config{
			Strategy:     cfg.Trade.Strategy,
			BackStake:    cfg.Trade.BackStake,
			MinBackPrice: cfg.Trade.MinBackPrice,
			Hedge: lifecycle.HedgeConfig{
				MinMargin:      cfg.Trade.MinMargin,
				Cutoff:         cfg.Trade.Cutoff.Duration,
				CommissionRate: cfg.Exchange.CommissionRate,
			},
		},
		logger,
	)
}

// addTradeCycle registers the lifecycle monitor cycle. The cycle is not
// exclusive: the monitor holds a per-trade lock, so multiple instances can
// share the trade load without double-acting on any one trade.
func (a *App) addTradeCycle(sched *scheduler.Scheduler, deps *Dependencies) error {
	if deps.Gateway == nil {
		return errors.New("app: trade cycle requires an exchange gateway")
	}

	engine := NewEngine(a.cfg, deps, a.logger)

	monitor := lifecycle.NewMonitor(
		engine,
		deps.EventStore,
		deps.TradeStore,
		deps.Provider,
		deps.Gateway,
		deps.LockManager,
		lifecycle.MonitorConfig{
			OptInAhead:   a.cfg.Trade.OptInAhead.Duration,
			PlaceAhead:   a.cfg.Trade.PlaceAhead.Duration,
			SettleGrace:  a.cfg.Trade.SettleGrace.Duration,
			Market:       a.cfg.Trade.Market,
			Selection:    a.cfg.Trade.Selection,
			MinBackPrice: a.cfg.Trade.MinBackPrice,
			MaxBackPrice: a.cfg.Trade.MaxBackPrice,
			LockTTL:      a.cfg.Trade.LockTTL.Duration,
			Concurrency:  a.cfg.Trade.Concurrency,
		},
		a.logger,
	)

	sched.Add(scheduler.Cycle{
		Name:     "trade_monitor",
		Interval: a.cfg.Trade.Interval.Duration,
		Run:      monitor.RunCycle,
	})
	return nil
}

// addArchiveCycle registers the cold-storage archive cycle when object
// storage is configured.
func (a *App) addArchiveCycle(sched *scheduler.Scheduler, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	retention := a.cfg.S3.Retention.Duration
	logger := a.logger.With(slog.String("component", "archive_cycle"))

	sched.Add(scheduler.Cycle{
		Name:     "archive",
		Interval: a.cfg.S3.ArchiveInterval.Duration,
		Run: func(ctx context.Context) error {
			before := time.Now().UTC().Add(-retention)
			nq, err := deps.Archiver.ArchiveQuotes(ctx, before)
			if err != nil {
				return fmt.Errorf("app: archive quotes: %w", err)
			}
			nc, err := deps.Archiver.ArchiveCandidates(ctx, before)
			if err != nil {
				return fmt.Errorf("app: archive candidates: %w", err)
			}
			if nq > 0 || nc > 0 {
				logger.Info("archive cycle complete",
					slog.Int64("quotes", nq),
					slog.Int64("candidates", nc),
				)
			}
			return nil
		},
		Exclusive: true,
	})
}

// runWithStream runs the scheduler and, when enabled, the exchange
// market-data stream alongside it. Both stop when ctx is cancelled.
func (a *App) runWithStream(ctx context.Context, sched *scheduler.Scheduler, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(ctx) })

	if a.cfg.Exchange.StreamEnabled && a.cfg.Exchange.WsURL != "" {
		stream := exchange.NewMarketStream(exchange.StreamConfig{
			URL: a.cfg.Exchange.WsURL,
		}, deps.PriceCache, a.logger)
		g.Go(func() error {
			err := stream.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
