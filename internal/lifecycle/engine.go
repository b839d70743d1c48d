// Package lifecycle implements the automated trade state machine:
// scheduled → active → hedged → settled, with cancelled and failed exits.
// Every transition confirms with the exchange first and then persists the
// state change through a compare-and-set at the storage boundary, so a
// crashed or concurrent writer can never record a transition the exchange
// did not confirm.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// Config holds the strategy parameters for one Engine.
type Config struct {
	// Strategy is the strategy key stamped on every trade.
	Strategy string
	// BackStake is the stake of the opening back order.
	BackStake float64
	// MinBackPrice is the lowest back price the strategy will open at.
	MinBackPrice float64
	Hedge        HedgeConfig
}

// Engine owns all StrategyTrade mutation. Each operation reads the trade,
// acts against the exchange, and applies the transition with the read
// status as the optimistic precondition; domain.ErrConflict means another
// writer moved the trade first and the caller must re-read before retrying.
type Engine struct {
	trades  domain.TradeStore
	gateway domain.ExchangeGateway
	prices  domain.PriceCache // optional top-of-book cache, gateway fallback
	audit   domain.AuditStore // optional
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an Engine. prices and audit may be nil.
func NewEngine(
	trades domain.TradeStore,
	gateway domain.ExchangeGateway,
	prices domain.PriceCache,
	audit domain.AuditStore,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		trades:  trades,
		gateway: gateway,
		prices:  prices,
		audit:   audit,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "trade_engine")),
	}
}

// ScheduleParams identifies the position a new trade will open.
type ScheduleParams struct {
	EventID     string
	MarketID    string
	SelectionID string
	Kickoff     time.Time
	BackPrice   float64 // intended back price
}

// Schedule creates a trade in status scheduled. The store's uniqueness
// constraint on (strategy, event, selection) makes double-creation
// impossible: a second call returns domain.ErrAlreadyExists.
func (e *Engine) Schedule(ctx context.Context, p ScheduleParams) (domain.StrategyTrade, error) {
	if p.EventID == "" || p.MarketID == "" || p.SelectionID == "" {
		return domain.StrategyTrade{}, fmt.Errorf("lifecycle: schedule: missing identifiers: %w", domain.ErrInvalidParams)
	}
	if p.Kickoff.IsZero() || p.BackPrice <= 1 {
		return domain.StrategyTrade{}, fmt.Errorf("lifecycle: schedule: bad kickoff or price: %w", domain.ErrInvalidParams)
	}
	if e.cfg.MinBackPrice > 0 && p.BackPrice < e.cfg.MinBackPrice {
		return domain.StrategyTrade{}, fmt.Errorf("lifecycle: schedule: back price %.2f below strategy minimum %.2f: %w",
			p.BackPrice, e.cfg.MinBackPrice, domain.ErrInvalidParams)
	}

	now := e.now()
	t := domain.StrategyTrade{
		ID:          uuid.New().String(),
		Strategy:    e.cfg.Strategy,
		EventID:     p.EventID,
		MarketID:    p.MarketID,
		SelectionID: p.SelectionID,
		Kickoff:     p.Kickoff,
		Status:      domain.TradeScheduled,
		BackPrice:   p.BackPrice,
		BackStake:   e.cfg.BackStake,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.trades.Create(ctx, t); err != nil {
		return domain.StrategyTrade{}, fmt.Errorf("lifecycle: schedule trade: %w", err)
	}
	e.auditLog(ctx, "trade_scheduled", t)
	return t, nil
}

// PlaceBack opens the back position for a scheduled trade: scheduled →
// active on an accepted fill, scheduled → failed on a terminal rejection or
// retry exhaustion.
func (e *Engine) PlaceBack(ctx context.Context, tradeID string) error {
	t, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("lifecycle: place back: %w", err)
	}
	if t.Status != domain.TradeScheduled {
		return fmt.Errorf("lifecycle: place back on %s trade: %w", t.Status, domain.ErrConflict)
	}

	res, err := e.gateway.PlaceOrder(ctx, t.MarketID, t.SelectionID, domain.SideBack, t.BackPrice, t.BackStake)
	if err != nil {
		return e.fail(ctx, t, domain.TradeScheduled, fmt.Errorf("back order: %w", err))
	}

	t.BackOrderID = res.OrderID
	if res.FilledPrice > 0 {
		t.BackPrice = res.FilledPrice
	}
	t.Status = domain.TradeActive
	t.LastError = ""
	t.UpdatedAt = e.now()
	if err := e.trades.Transition(ctx, t, domain.TradeScheduled); err != nil {
		// The order is live but the row moved under us. Surface the
		// conflict; the exposure is reconciled by the next monitor pass.
		e.logger.Error("back order placed but transition refused",
			slog.String("trade_id", t.ID),
			slog.String("order_id", res.OrderID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("lifecycle: persist active: %w", err)
	}

	e.logger.Info("back position opened",
		slog.String("trade_id", t.ID),
		slog.Float64("price", t.BackPrice),
		slog.Float64("stake", t.BackStake),
	)
	e.auditLog(ctx, "trade_activated", t)
	return nil
}

// Monitor runs one hedge-trigger evaluation for an active trade: active →
// hedged when the trigger fires and the lay is accepted.
func (e *Engine) Monitor(ctx context.Context, tradeID string) error {
	t, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("lifecycle: monitor: %w", err)
	}
	if t.Status != domain.TradeActive {
		return fmt.Errorf("lifecycle: monitor on %s trade: %w", t.Status, domain.ErrConflict)
	}

	best, err := e.bestPrices(ctx, t)
	if err != nil {
		// Price lookup failures are transient by nature; leave the trade
		// untouched and let the next cycle retry.
		return fmt.Errorf("lifecycle: query best prices: %w", err)
	}

	d := EvaluateHedge(t, best, e.now(), e.cfg.Hedge)
	if !d.Fire {
		return nil
	}

	res, err := e.gateway.PlaceOrder(ctx, t.MarketID, t.SelectionID, domain.SideLay, d.LayPrice, d.LayStake)
	if err != nil {
		return e.fail(ctx, t, domain.TradeActive, fmt.Errorf("lay order: %w", err))
	}

	t.LayOrderID = res.OrderID
	t.LayPrice = d.LayPrice
	if res.FilledPrice > 0 {
		t.LayPrice = res.FilledPrice
	}
	t.LayStake = d.LayStake
	t.CommissionPaid = Commission(e.cfg.Hedge.CommissionRate, GrossMargin(t.BackStake, t.BackPrice, t.LayStake, t.LayPrice))
	t.Margin = Margin(t.BackStake, t.BackPrice, t.LayStake, t.LayPrice, t.CommissionPaid)
	t.Status = domain.TradeHedged
	t.LastError = ""
	t.UpdatedAt = e.now()
	if err := e.trades.Transition(ctx, t, domain.TradeActive); err != nil {
		e.logger.Error("lay order placed but transition refused",
			slog.String("trade_id", t.ID),
			slog.String("order_id", res.OrderID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("lifecycle: persist hedged: %w", err)
	}

	e.logger.Info("position hedged",
		slog.String("trade_id", t.ID),
		slog.Float64("lay_price", t.LayPrice),
		slog.Float64("lay_stake", t.LayStake),
		slog.Float64("margin", t.Margin),
		slog.Bool("forced", d.Forced),
	)
	e.auditLog(ctx, "trade_hedged", t)
	return nil
}

// Cancel withdraws a trade on manual request. Trades that are hedged or
// beyond are irreversible and report a conflict. An active trade is only
// cancelled after the exchange confirms the back leg carries no fill; a
// fill that raced the cancel leaves the trade active.
func (e *Engine) Cancel(ctx context.Context, tradeID string) error {
	t, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("lifecycle: cancel: %w", err)
	}

	switch t.Status {
	case domain.TradeScheduled:
		t.Status = domain.TradeCancelled
		t.UpdatedAt = e.now()
		if err := e.trades.Transition(ctx, t, domain.TradeScheduled); err != nil {
			return fmt.Errorf("lifecycle: persist cancelled: %w", err)
		}
		e.auditLog(ctx, "trade_cancelled", t)
		return nil

	case domain.TradeActive:
		res, err := e.gateway.CancelOrder(ctx, t.BackOrderID)
		if err != nil {
			// Unknown outcome: do not touch the row, the position may be
			// live. The caller re-reads and retries.
			return fmt.Errorf("lifecycle: cancel back order: %w", err)
		}
		if res.FilledSize > 0 || !res.Cancelled {
			// The back leg (partially) filled while the cancel was in
			// flight. Never mark cancelled over an open position.
			e.logger.Warn("cancel raced a fill, trade stays open",
				slog.String("trade_id", t.ID),
				slog.Float64("filled_size", res.FilledSize),
			)
			return fmt.Errorf("lifecycle: back leg filled during cancel: %w", domain.ErrConflict)
		}
		t.Status = domain.TradeCancelled
		t.UpdatedAt = e.now()
		if err := e.trades.Transition(ctx, t, domain.TradeActive); err != nil {
			return fmt.Errorf("lifecycle: persist cancelled: %w", err)
		}
		e.auditLog(ctx, "trade_cancelled", t)
		return nil

	default:
		return fmt.Errorf("lifecycle: cancel on %s trade: %w", t.Status, domain.ErrConflict)
	}
}

// Settle records realized P&L once the event outcome is known. Hedged
// trades realize the margin locked at hedge time; a never-hedged active
// trade realizes the full back outcome. Settling an already-settled trade
// is a no-op.
func (e *Engine) Settle(ctx context.Context, tradeID string, result domain.Result) error {
	t, err := e.trades.GetByID(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("lifecycle: settle: %w", err)
	}

	switch t.Status {
	case domain.TradeSettled, domain.TradeCancelled, domain.TradeFailed:
		return nil
	case domain.TradeScheduled:
		return fmt.Errorf("lifecycle: settle before placement: %w", domain.ErrConflict)
	}

	var pnl float64
	switch t.Status {
	case domain.TradeHedged:
		pnl = t.Margin
	case domain.TradeActive:
		if result.WinningSelection == t.SelectionID {
			win := t.BackStake * (t.BackPrice - 1)
			t.CommissionPaid = Commission(e.cfg.Hedge.CommissionRate, win)
			pnl = win - t.CommissionPaid
		} else {
			pnl = -t.BackStake
		}
	}

	from := t.Status
	t.RealizedPnL = &pnl
	t.Status = domain.TradeSettled
	t.UpdatedAt = e.now()
	if err := e.trades.Transition(ctx, t, from); err != nil {
		return fmt.Errorf("lifecycle: persist settled: %w", err)
	}

	e.logger.Info("trade settled",
		slog.String("trade_id", t.ID),
		slog.String("from", string(from)),
		slog.Float64("pnl", pnl),
	)
	e.auditLog(ctx, "trade_settled", t)
	return nil
}

// fail moves a trade to failed with the reason recorded, keeping terminal
// rejections and exhausted retries distinguishable in last_error. The
// original cause is returned so callers see why the operation failed.
func (e *Engine) fail(ctx context.Context, t domain.StrategyTrade, from domain.TradeStatus, cause error) error {
	t.Status = domain.TradeFailed
	t.LastError = cause.Error()
	t.UpdatedAt = e.now()
	if terr := e.trades.Transition(ctx, t, from); terr != nil {
		e.logger.Error("failed to record trade failure",
			slog.String("trade_id", t.ID),
			slog.String("cause", cause.Error()),
			slog.String("error", terr.Error()),
		)
		return errors.Join(cause, terr)
	}
	e.logger.Warn("trade failed",
		slog.String("trade_id", t.ID),
		slog.String("reason", t.LastError),
	)
	e.auditLog(ctx, "trade_failed", t)
	return fmt.Errorf("lifecycle: trade %s failed: %w", t.ID, cause)
}

// bestPrices reads the cached top-of-book when fresh, otherwise asks the
// exchange directly.
func (e *Engine) bestPrices(ctx context.Context, t domain.StrategyTrade) (domain.BestPrices, error) {
	if e.prices != nil {
		best, err := e.prices.GetBest(ctx, t.SelectionID)
		if err == nil && e.now().Sub(best.AsOf) < 30*time.Second {
			return best, nil
		}
	}
	return e.gateway.QueryBestPrices(ctx, t.MarketID, t.SelectionID)
}

func (e *Engine) auditLog(ctx context.Context, event string, t domain.StrategyTrade) {
	if e.audit == nil {
		return
	}
	detail := map[string]any{
		"trade_id":  t.ID,
		"strategy":  t.Strategy,
		"event_id":  t.EventID,
		"selection": t.SelectionID,
		"status":    string(t.Status),
	}
	if t.LastError != "" {
		detail["last_error"] = t.LastError
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.Warn("audit log write failed", slog.String("error", err.Error()))
	}
}
