package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/fairprice"
)

// BetService records and settles manually placed bets. The fair price at
// acceptance time is captured alongside each bet so closing value can be
// reviewed against the model later.
type BetService struct {
	bets   domain.BetStore
	quotes domain.QuoteStore
	model  *fairprice.Model
	logger *slog.Logger
	now    func() time.Time
}

// NewBetService creates a BetService.
func NewBetService(bets domain.BetStore, quotes domain.QuoteStore, model *fairprice.Model, logger *slog.Logger) *BetService {
	return &BetService{
		bets:   bets,
		quotes: quotes,
		model:  model,
		logger: logger,
		now:    time.Now,
	}
}

// PlaceBetParams describes one manual bet.
type PlaceBetParams struct {
	EventID   string
	Market    string
	Selection string
	Source    string // bookmaker the bet was placed with
	Odds      float64
	Stake     float64
}

// Place records a pending bet, capturing the model's current fair estimate
// for the selection. A selection the model cannot price (below quorum) is
// still recorded, with zero fair fields and a warning.
func (s *BetService) Place(ctx context.Context, p PlaceBetParams) (domain.Bet, error) {
	if p.EventID == "" || p.Market == "" || p.Selection == "" || p.Source == "" {
		return domain.Bet{}, fmt.Errorf("bet_service: missing identity fields: %w", domain.ErrInvalidParams)
	}
	if p.Odds <= 1.0 || p.Stake <= 0 {
		return domain.Bet{}, fmt.Errorf("bet_service: odds %v / stake %v out of range: %w", p.Odds, p.Stake, domain.ErrInvalidParams)
	}

	now := s.now().UTC()
	bet := domain.Bet{
		ID:        uuid.NewString(),
		EventID:   p.EventID,
		Market:    p.Market,
		Selection: p.Selection,
		Source:    p.Source,
		Odds:      p.Odds,
		Stake:     p.Stake,
		Status:    domain.BetPending,
		CreatedAt: now,
	}

	window := now.Add(-s.model.MaxQuoteAge())
	quotes, err := s.quotes.ListWindow(ctx, p.EventID, p.Market, window)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: load quote window: %w", err)
	}
	fair, err := s.model.Estimate(quotes, p.Selection, now)
	switch {
	case err == nil:
		bet.FairProb = fair.Prob
		bet.FairPrice = fair.Price
	case errors.Is(err, domain.ErrInsufficientData):
		s.logger.WarnContext(ctx, "bet_service: no fair price at acceptance",
			slog.String("event_id", p.EventID),
			slog.String("selection", p.Selection),
		)
	default:
		return domain.Bet{}, fmt.Errorf("bet_service: estimate fair price: %w", err)
	}

	if err := s.bets.Create(ctx, bet); err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: create: %w", err)
	}
	s.logger.InfoContext(ctx, "bet_service: bet recorded",
		slog.String("bet_id", bet.ID),
		slog.String("event_id", bet.EventID),
		slog.Float64("odds", bet.Odds),
		slog.Float64("fair_price", bet.FairPrice),
	)
	return bet, nil
}

// Settle moves a pending bet to a terminal status, computing P&L from the
// recorded odds and stake. A second settlement attempt returns ErrConflict.
func (s *BetService) Settle(ctx context.Context, id string, status domain.BetStatus) (float64, error) {
	if !status.Terminal() {
		return 0, fmt.Errorf("bet_service: %q is not a terminal status: %w", status, domain.ErrInvalidParams)
	}

	bet, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("bet_service: get %s: %w", id, err)
	}

	var pnl float64
	switch status {
	case domain.BetWon:
		pnl = bet.Stake * (bet.Odds - 1)
	case domain.BetLost:
		pnl = -bet.Stake
	case domain.BetVoid:
		pnl = 0
	}

	if err := s.bets.Settle(ctx, id, status, pnl, s.now().UTC()); err != nil {
		return 0, fmt.Errorf("bet_service: settle %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "bet_service: bet settled",
		slog.String("bet_id", id),
		slog.String("status", string(status)),
		slog.Float64("pnl", pnl),
	)
	return pnl, nil
}

// Pending returns all unsettled bets, newest first.
func (s *BetService) Pending(ctx context.Context, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByStatus(ctx, domain.BetPending, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list pending: %w", err)
	}
	return bets, nil
}
