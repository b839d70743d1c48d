package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/fairprice"
)

var betNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

type fakeBetStore struct {
	bets map[string]domain.Bet
}

func newFakeBetStore() *fakeBetStore {
	return &fakeBetStore{bets: map[string]domain.Bet{}}
}

func (s *fakeBetStore) Create(_ context.Context, b domain.Bet) error {
	if _, ok := s.bets[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.bets[b.ID] = b
	return nil
}

func (s *fakeBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *fakeBetStore) ListByStatus(_ context.Context, status domain.BetStatus, _ domain.ListOpts) ([]domain.Bet, error) {
	var out []domain.Bet
	for _, b := range s.bets {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBetStore) Settle(_ context.Context, id string, status domain.BetStatus, pnl float64, at time.Time) error {
	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != domain.BetPending {
		return domain.ErrConflict
	}
	b.Status = status
	b.PnL = &pnl
	b.SettledAt = &at
	s.bets[id] = b
	return nil
}

type fixedQuotes struct {
	quotes []domain.Quote
}

func (f fixedQuotes) InsertBatch(context.Context, []domain.Quote) (int64, error) { return 0, nil }

func (f fixedQuotes) ListWindow(context.Context, string, string, time.Time) ([]domain.Quote, error) {
	return f.quotes, nil
}

func (f fixedQuotes) ListBefore(context.Context, time.Time) ([]domain.Quote, error) {
	return nil, nil
}

func (f fixedQuotes) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func evenMoneyQuotes() []domain.Quote {
	mk := func(book, sel string, price float64) domain.Quote {
		return domain.Quote{
			EventID: "ev-1", Market: "match_odds", Selection: sel,
			Bookmaker: book, Price: price, ObservedAt: betNow.Add(-time.Minute),
		}
	}
	return []domain.Quote{
		mk("alphabook", "home", 1.95), mk("alphabook", "away", 1.95),
		mk("betahouse", "home", 1.92), mk("betahouse", "away", 1.98),
	}
}

func newBetService(bets domain.BetStore, quotes domain.QuoteStore) *BetService {
	svc := NewBetService(bets, quotes, fairprice.New(fairprice.Config{}),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return betNow }
	return svc
}

func TestPlaceCapturesFairPrice(t *testing.T) {
	store := newFakeBetStore()
	svc := newBetService(store, fixedQuotes{quotes: evenMoneyQuotes()})

	bet, err := svc.Place(context.Background(), PlaceBetParams{
		EventID: "ev-1", Market: "match_odds", Selection: "home",
		Source: "alphabook", Odds: 2.10, Stake: 25,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if bet.Status != domain.BetPending {
		t.Fatalf("status = %s, want pending", bet.Status)
	}
	if bet.FairProb <= 0 || bet.FairPrice <= 1 {
		t.Fatalf("fair price not captured: prob=%v price=%v", bet.FairProb, bet.FairPrice)
	}
	if _, ok := store.bets[bet.ID]; !ok {
		t.Fatal("bet not persisted")
	}
}

func TestPlaceBelowQuorumStillRecords(t *testing.T) {
	store := newFakeBetStore()
	svc := newBetService(store, fixedQuotes{}) // no quotes at all

	bet, err := svc.Place(context.Background(), PlaceBetParams{
		EventID: "ev-1", Market: "match_odds", Selection: "home",
		Source: "alphabook", Odds: 2.10, Stake: 25,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if bet.FairProb != 0 || bet.FairPrice != 0 {
		t.Fatalf("expected zero fair fields, got prob=%v price=%v", bet.FairProb, bet.FairPrice)
	}
}

func TestPlaceValidation(t *testing.T) {
	svc := newBetService(newFakeBetStore(), fixedQuotes{})

	tests := []PlaceBetParams{
		{Market: "match_odds", Selection: "home", Source: "b", Odds: 2, Stake: 10}, // no event
		{EventID: "ev-1", Market: "match_odds", Selection: "home", Source: "b", Odds: 1.0, Stake: 10},
		{EventID: "ev-1", Market: "match_odds", Selection: "home", Source: "b", Odds: 2, Stake: 0},
	}
	for _, p := range tests {
		if _, err := svc.Place(context.Background(), p); !errors.Is(err, domain.ErrInvalidParams) {
			t.Fatalf("expected ErrInvalidParams for %+v, got %v", p, err)
		}
	}
}

func TestSettleComputesPnLOnce(t *testing.T) {
	store := newFakeBetStore()
	svc := newBetService(store, fixedQuotes{quotes: evenMoneyQuotes()})

	bet, err := svc.Place(context.Background(), PlaceBetParams{
		EventID: "ev-1", Market: "match_odds", Selection: "home",
		Source: "alphabook", Odds: 2.10, Stake: 25,
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	pnl, err := svc.Settle(context.Background(), bet.ID, domain.BetWon)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if want := 25 * (2.10 - 1); pnl != want {
		t.Fatalf("pnl = %v, want %v", pnl, want)
	}

	if _, err := svc.Settle(context.Background(), bet.ID, domain.BetLost); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second settle: expected ErrConflict, got %v", err)
	}
	stored := store.bets[bet.ID]
	if stored.Status != domain.BetWon || stored.PnL == nil || *stored.PnL != pnl {
		t.Fatalf("settled bet mutated: %+v", stored)
	}
}

func TestSettleRejectsNonTerminalStatus(t *testing.T) {
	svc := newBetService(newFakeBetStore(), fixedQuotes{})
	if _, err := svc.Settle(context.Background(), "any", domain.BetPending); !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}
