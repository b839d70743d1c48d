package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/lifecycle"
)

// TradeService is the operator-facing read model and manual control surface
// over strategy trades. Mutations go through the lifecycle engine so every
// status change keeps its compare-and-set guarantees.
type TradeService struct {
	trades domain.TradeStore
	engine *lifecycle.Engine
	logger *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(trades domain.TradeStore, engine *lifecycle.Engine, logger *slog.Logger) *TradeService {
	return &TradeService{
		trades: trades,
		engine: engine,
		logger: logger,
	}
}

// Get returns a trade by ID.
func (s *TradeService) Get(ctx context.Context, id string) (domain.StrategyTrade, error) {
	t, err := s.trades.GetByID(ctx, id)
	if err != nil {
		return domain.StrategyTrade{}, fmt.Errorf("trade_service: get %s: %w", id, err)
	}
	return t, nil
}

// List returns trades matching the filter, ordered by kickoff.
func (s *TradeService) List(ctx context.Context, filter domain.TradeFilter) ([]domain.StrategyTrade, error) {
	trades, err := s.trades.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list: %w", err)
	}
	return trades, nil
}

// Cancel withdraws a trade on operator request. The engine decides whether
// cancellation is still possible; a trade whose back order has already
// filled stays open and the caller gets ErrConflict.
func (s *TradeService) Cancel(ctx context.Context, id string) error {
	if err := s.engine.Cancel(ctx, id); err != nil {
		return fmt.Errorf("trade_service: cancel %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "trade_service: trade cancelled", slog.String("trade_id", id))
	return nil
}

// Open returns all trades still carrying exposure, soonest kickoff first.
func (s *TradeService) Open(ctx context.Context) ([]domain.StrategyTrade, error) {
	var open []domain.StrategyTrade
	for _, status := range []domain.TradeStatus{domain.TradeScheduled, domain.TradeActive, domain.TradeHedged} {
		trades, err := s.trades.List(ctx, domain.TradeFilter{Status: status})
		if err != nil {
			return nil, fmt.Errorf("trade_service: list %s: %w", status, err)
		}
		open = append(open, trades...)
	}
	return open, nil
}
