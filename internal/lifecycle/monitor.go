package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// MonitorConfig holds the monitoring cycle parameters.
type MonitorConfig struct {
	// OptInAhead is how far before kickoff the strategy opts in to a
	// discovered fixture by scheduling a trade.
	OptInAhead time.Duration
	// PlaceAhead is how far before kickoff the back order is placed.
	PlaceAhead time.Duration
	// SettleGrace is how long after kickoff results are polled before the
	// event is considered abandoned for this cycle.
	SettleGrace time.Duration
	// Market and Selection identify the exchange position the strategy
	// opens per event.
	Market    string
	Selection string
	// MinBackPrice/MaxBackPrice bound the opening price the strategy
	// accepts; events outside the band are skipped.
	MinBackPrice float64
	MaxBackPrice float64
	// LockTTL is the per-trade distributed lock lifetime.
	LockTTL time.Duration
	// Concurrency bounds how many trades are evaluated at once.
	Concurrency int
}

// Monitor drives all trades through one monitoring cycle: opt in to new
// fixtures, place due back orders, evaluate hedge triggers, and settle
// finished events. Different trades proceed concurrently; a distributed
// per-trade lock guarantees at most one in-flight evaluation per trade
// even across process instances.
type Monitor struct {
	engine  *Engine
	events  domain.EventStore
	trades  domain.TradeStore
	results domain.ResultFeed
	gateway domain.ExchangeGateway
	locks   domain.LockManager
	cfg     MonitorConfig
	logger  *slog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(
	engine *Engine,
	events domain.EventStore,
	trades domain.TradeStore,
	results domain.ResultFeed,
	gateway domain.ExchangeGateway,
	locks domain.LockManager,
	cfg MonitorConfig,
	logger *slog.Logger,
) *Monitor {
	if cfg.OptInAhead <= 0 {
		cfg.OptInAhead = 24 * time.Hour
	}
	if cfg.PlaceAhead <= 0 {
		cfg.PlaceAhead = 2 * time.Hour
	}
	if cfg.SettleGrace <= 0 {
		cfg.SettleGrace = 6 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Monitor{
		engine:  engine,
		events:  events,
		trades:  trades,
		results: results,
		gateway: gateway,
		locks:   locks,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "trade_monitor")),
	}
}

// RunCycle performs one monitoring pass. Per-trade failures are logged and
// do not abort the cycle; conflicts are expected under concurrent writers
// and logged at debug level only.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if err := m.optIn(ctx); err != nil {
		m.logger.Warn("opt-in pass failed", slog.String("error", err.Error()))
	}

	now := time.Now().UTC()

	scheduled, err := m.trades.List(ctx, domain.TradeFilter{Strategy: m.engine.cfg.Strategy, Status: domain.TradeScheduled})
	if err != nil {
		return fmt.Errorf("lifecycle: list scheduled trades: %w", err)
	}
	active, err := m.trades.List(ctx, domain.TradeFilter{Strategy: m.engine.cfg.Strategy, Status: domain.TradeActive})
	if err != nil {
		return fmt.Errorf("lifecycle: list active trades: %w", err)
	}
	hedged, err := m.trades.List(ctx, domain.TradeFilter{Strategy: m.engine.cfg.Strategy, Status: domain.TradeHedged})
	if err != nil {
		return fmt.Errorf("lifecycle: list hedged trades: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)

	for _, t := range scheduled {
		if now.Before(t.Kickoff.Add(-m.cfg.PlaceAhead)) {
			continue
		}
		t := t
		g.Go(func() error {
			m.withTradeLock(gctx, t.ID, func(ctx context.Context) error {
				return m.engine.PlaceBack(ctx, t.ID)
			})
			return nil
		})
	}

	for _, t := range active {
		t := t
		g.Go(func() error {
			m.withTradeLock(gctx, t.ID, func(ctx context.Context) error {
				return m.engine.Monitor(ctx, t.ID)
			})
			return nil
		})
	}

	// Active trades past kickoff can still settle unhedged (e.g. forced lay
	// found no liquidity before the off).
	settleable := hedged
	for _, t := range active {
		if now.After(t.Kickoff) {
			settleable = append(settleable, t)
		}
	}
	for _, t := range settleable {
		if now.Before(t.Kickoff) || now.After(t.Kickoff.Add(m.cfg.SettleGrace)) {
			continue
		}
		t := t
		g.Go(func() error {
			m.settleOne(gctx, t)
			return nil
		})
	}

	return g.Wait()
}

// optIn schedules a trade for every upcoming fixture the strategy does not
// hold one for yet, provided the exchange back price is inside the band.
func (m *Monitor) optIn(ctx context.Context) error {
	events, err := m.events.ListUpcoming(ctx, m.cfg.OptInAhead, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("list upcoming events: %w", err)
	}

	for _, ev := range events {
		_, err := m.trades.GetByKey(ctx, m.engine.cfg.Strategy, ev.ID, m.cfg.Selection)
		if err == nil {
			continue // already holding a trade for this fixture
		}
		if !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("trade lookup failed", slog.String("event_id", ev.ID), slog.String("error", err.Error()))
			continue
		}

		best, err := m.gateway.QueryBestPrices(ctx, ev.ID, m.cfg.Selection)
		if err != nil {
			m.logger.Debug("no exchange prices yet", slog.String("event_id", ev.ID), slog.String("error", err.Error()))
			continue
		}
		if best.BackPrice < m.cfg.MinBackPrice || best.BackPrice > m.cfg.MaxBackPrice {
			continue
		}

		_, err = m.engine.Schedule(ctx, ScheduleParams{
			EventID:     ev.ID,
			MarketID:    ev.ID,
			SelectionID: m.cfg.Selection,
			Kickoff:     ev.StartTime,
			BackPrice:   best.BackPrice,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			m.logger.Warn("opt-in schedule failed", slog.String("event_id", ev.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (m *Monitor) settleOne(ctx context.Context, t domain.StrategyTrade) {
	result, err := m.results.FetchResult(ctx, t.EventID)
	if err != nil {
		m.logger.Debug("result not available", slog.String("event_id", t.EventID), slog.String("error", err.Error()))
		return
	}
	if !result.Settled {
		return
	}
	m.withTradeLock(ctx, t.ID, func(ctx context.Context) error {
		return m.engine.Settle(ctx, t.ID, result)
	})
}

// withTradeLock runs fn under the trade's distributed lock. A held lock
// means another instance is evaluating this trade; skip, never queue.
func (m *Monitor) withTradeLock(ctx context.Context, tradeID string, fn func(context.Context) error) {
	unlock, err := m.locks.Acquire(ctx, "trade:"+tradeID, m.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			m.logger.Debug("trade locked elsewhere", slog.String("trade_id", tradeID))
			return
		}
		m.logger.Warn("trade lock acquire failed", slog.String("trade_id", tradeID), slog.String("error", err.Error()))
		return
	}
	defer unlock()

	if err := fn(ctx); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.logger.Debug("trade transition conflict", slog.String("trade_id", tradeID))
			return
		}
		m.logger.Warn("trade evaluation failed", slog.String("trade_id", tradeID), slog.String("error", err.Error()))
	}
}
