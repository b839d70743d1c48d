package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// fakeTradeStore is an in-memory TradeStore with the same compare-and-set
// semantics as the Postgres implementation.
type fakeTradeStore struct {
	mu     sync.Mutex
	trades map[string]domain.StrategyTrade
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{trades: make(map[string]domain.StrategyTrade)}
}

func (s *fakeTradeStore) Create(_ context.Context, t domain.StrategyTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.trades {
		if existing.Strategy == t.Strategy && existing.EventID == t.EventID && existing.SelectionID == t.SelectionID {
			return domain.ErrAlreadyExists
		}
	}
	s.trades[t.ID] = t
	return nil
}

func (s *fakeTradeStore) GetByID(_ context.Context, id string) (domain.StrategyTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.StrategyTrade{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *fakeTradeStore) GetByKey(_ context.Context, strategy, eventID, selectionID string) (domain.StrategyTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.Strategy == strategy && t.EventID == eventID && t.SelectionID == selectionID {
			return t, nil
		}
	}
	return domain.StrategyTrade{}, domain.ErrNotFound
}

func (s *fakeTradeStore) List(_ context.Context, filter domain.TradeFilter) ([]domain.StrategyTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StrategyTrade
	for _, t := range s.trades {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeTradeStore) Transition(_ context.Context, t domain.StrategyTrade, expected domain.TradeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.trades[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != expected {
		return domain.ErrConflict
	}
	s.trades[t.ID] = t
	return nil
}

// fakeGateway is a scriptable ExchangeGateway.
type fakeGateway struct {
	mu          sync.Mutex
	placeResult domain.PlaceResult
	placeErr    error
	placeCalls  int
	cancelRes   domain.CancelResult
	cancelErr   error
	best        domain.BestPrices
	bestErr     error
}

func (g *fakeGateway) PlaceOrder(_ context.Context, _, _ string, _ domain.Side, _, _ float64) (domain.PlaceResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeCalls++
	return g.placeResult, g.placeErr
}

func (g *fakeGateway) CancelOrder(_ context.Context, _ string) (domain.CancelResult, error) {
	return g.cancelRes, g.cancelErr
}

func (g *fakeGateway) QueryBestPrices(_ context.Context, _, _ string) (domain.BestPrices, error) {
	return g.best, g.bestErr
}

func (g *fakeGateway) OrderStatus(_ context.Context, _ string) (domain.PlaceResult, error) {
	return g.placeResult, g.placeErr
}

var engineTestNow = time.Date(2026, 3, 14, 19, 20, 0, 0, time.UTC)

func newTestEngine(store domain.TradeStore, gw domain.ExchangeGateway) *Engine {
	e := NewEngine(store, gw, nil, nil, Config{
		Strategy:     "prekickoff_hedge",
		BackStake:    10,
		MinBackPrice: 1.5,
		Hedge: HedgeConfig{
			MinMargin:      0.5,
			Cutoff:         30 * time.Minute,
			CommissionRate: 0.05,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return engineTestNow }
	return e
}

func scheduleTrade(t *testing.T, e *Engine, kickoff time.Time) domain.StrategyTrade {
	t.Helper()
	trade, err := e.Schedule(context.Background(), ScheduleParams{
		EventID:     "ev1",
		MarketID:    "ev1",
		SelectionID: "home",
		Kickoff:     kickoff,
		BackPrice:   2.10,
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	return trade
}

func TestSchedule_ValidatesParams(t *testing.T) {
	e := newTestEngine(newFakeTradeStore(), &fakeGateway{})
	_, err := e.Schedule(context.Background(), ScheduleParams{EventID: "ev1"})
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestSchedule_RejectsBackPriceBelowStrategyMinimum(t *testing.T) {
	store := newFakeTradeStore()
	e := newTestEngine(store, &fakeGateway{}) // MinBackPrice 1.5

	_, err := e.Schedule(context.Background(), ScheduleParams{
		EventID:     "ev1",
		MarketID:    "ev1",
		SelectionID: "home",
		Kickoff:     engineTestNow.Add(time.Hour),
		BackPrice:   1.30,
	})
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams below minimum, got %v", err)
	}
	if n := len(store.trades); n != 0 {
		t.Errorf("trade persisted despite rejection, store holds %d", n)
	}
}

func TestSchedule_UniquePerStrategyEventSelection(t *testing.T) {
	store := newFakeTradeStore()
	e := newTestEngine(store, &fakeGateway{})
	kickoff := engineTestNow.Add(40 * time.Minute)

	scheduleTrade(t, e, kickoff)
	_, err := e.Schedule(context.Background(), ScheduleParams{
		EventID: "ev1", MarketID: "ev1", SelectionID: "home",
		Kickoff: kickoff, BackPrice: 2.05,
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on duplicate key, got %v", err)
	}
}

func TestPlaceBack_TransitionsToActive(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{
		OrderID: "ord-1", Status: domain.OrderFilled, FilledPrice: 2.12, FilledSize: 10,
	}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(40*time.Minute))

	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeActive {
		t.Errorf("status = %v, want active", got.Status)
	}
	if got.BackOrderID != "ord-1" || got.BackPrice != 2.12 {
		t.Errorf("back leg not recorded: %+v", got)
	}
}

func TestPlaceBack_RejectionFailsTrade(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeErr: &domain.Rejection{Code: "INSUFFICIENT_FUNDS", Reason: "balance too low"}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(40*time.Minute))

	err := e.PlaceBack(context.Background(), trade.ID)
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejection to surface, got %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeFailed {
		t.Errorf("status = %v, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Errorf("terminal failure must record last_error")
	}
}

func TestMonitor_HedgesOnForcedCutoff(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{
		placeResult: domain.PlaceResult{OrderID: "lay-1", Status: domain.OrderFilled},
		best:        domain.BestPrices{LayPrice: 2.50, LaySize: 50},
	}
	e := newTestEngine(store, gw)
	// Kickoff 30 minutes out: exactly at the cutoff.
	trade := scheduleTrade(t, e, engineTestNow.Add(30*time.Minute))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	gw.placeResult = domain.PlaceResult{OrderID: "lay-1", Status: domain.OrderFilled}

	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeHedged {
		t.Fatalf("status = %v, want hedged", got.Status)
	}
	if got.LayOrderID != "lay-1" || got.LayPrice != 2.50 {
		t.Errorf("lay leg not recorded: %+v", got)
	}
	if got.Margin >= 0 {
		t.Errorf("forced hedge at unfavorable price should lock a loss, margin %v", got.Margin)
	}
}

func TestMonitor_NoTriggerLeavesActive(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{best: domain.BestPrices{LayPrice: 2.50, LaySize: 50}}
	e := newTestEngine(store, gw)
	// Kickoff 35 minutes out: before cutoff, unfavorable price.
	trade := scheduleTrade(t, e, engineTestNow.Add(35*time.Minute))
	gw.placeResult = domain.PlaceResult{OrderID: "back-1", Status: domain.OrderFilled}
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	before := gw.placeCalls

	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeActive {
		t.Errorf("status = %v, want active", got.Status)
	}
	if gw.placeCalls != before {
		t.Errorf("no lay order may be placed before the trigger fires")
	}
}

func TestCancel_RejectedOnceHedged(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{
		placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled},
		best:        domain.BestPrices{LayPrice: 1.80, LaySize: 100},
	}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	err := e.Cancel(context.Background(), trade.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("cancel on hedged trade: expected ErrConflict, got %v", err)
	}
	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeHedged {
		t.Errorf("hedged trade mutated by rejected cancel: %v", got.Status)
	}
}

func TestCancel_FillRaceNeverEndsCancelled(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{OrderID: "back-1", Status: domain.OrderFilled}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}

	// The exchange reports the back leg filled while the cancel was in
	// flight.
	gw.cancelRes = domain.CancelResult{Cancelled: false, FilledSize: 10}

	err := e.Cancel(context.Background(), trade.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on cancel/fill race, got %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status == domain.TradeCancelled {
		t.Fatalf("trade marked cancelled over a filled back leg")
	}
	if got.Status != domain.TradeActive && got.Status != domain.TradeFailed {
		t.Errorf("status = %v, want active or failed", got.Status)
	}
}

func TestCancel_CleanCancelFromActive(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{OrderID: "back-1", Status: domain.OrderOpen}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	gw.cancelRes = domain.CancelResult{Cancelled: true}

	if err := e.Cancel(context.Background(), trade.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeCancelled {
		t.Errorf("status = %v, want cancelled", got.Status)
	}
}

func TestSettle_HedgedRealizesLockedMargin(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{
		placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled},
		best:        domain.BestPrices{LayPrice: 1.80, LaySize: 100},
	}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	hedged, _ := store.GetByID(context.Background(), trade.ID)

	result := domain.Result{EventID: "ev1", WinningSelection: "away", Settled: true}
	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeSettled {
		t.Fatalf("status = %v, want settled", got.Status)
	}
	if got.RealizedPnL == nil || *got.RealizedPnL != hedged.Margin {
		t.Errorf("realized P&L = %v, want locked margin %v", got.RealizedPnL, hedged.Margin)
	}
	// The hedged legs are frozen through settlement.
	if got.BackPrice != hedged.BackPrice || got.LayPrice != hedged.LayPrice || got.LayStake != hedged.LayStake {
		t.Errorf("leg fields mutated at settlement: %+v vs %+v", got, hedged)
	}
}

func TestSettle_Idempotent(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{
		placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled},
		best:        domain.BestPrices{LayPrice: 1.80, LaySize: 100},
	}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	result := domain.Result{EventID: "ev1", WinningSelection: "home", Settled: true}
	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	first, _ := store.GetByID(context.Background(), trade.ID)

	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("second Settle must be a no-op, got %v", err)
	}
	second, _ := store.GetByID(context.Background(), trade.ID)

	if *first.RealizedPnL != *second.RealizedPnL {
		t.Errorf("repeated settlement changed P&L: %v then %v", *first.RealizedPnL, *second.RealizedPnL)
	}
	if second.UpdatedAt != first.UpdatedAt {
		t.Errorf("repeated settlement touched the row")
	}
}

func TestSettle_UnhedgedWin(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled, FilledPrice: 2.10}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}

	result := domain.Result{EventID: "ev1", WinningSelection: "home", Settled: true}
	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	win := 10 * (2.10 - 1)
	want := win - Commission(0.05, win)
	if got.RealizedPnL == nil || *got.RealizedPnL != want {
		t.Errorf("unhedged win P&L = %v, want %v", got.RealizedPnL, want)
	}
}

func TestSettle_UnhedgedLoss(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}

	result := domain.Result{EventID: "ev1", WinningSelection: "away", Settled: true}
	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.RealizedPnL == nil || *got.RealizedPnL != -10 {
		t.Errorf("unhedged loss P&L = %v, want -10", got.RealizedPnL)
	}
}

func TestTerminalAfterHedge(t *testing.T) {
	// No operation may move a trade out of hedged except settlement, and
	// nothing moves it out of settled.
	store := newFakeTradeStore()
	gw := &fakeGateway{
		placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled},
		best:        domain.BestPrices{LayPrice: 1.80, LaySize: 100},
	}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))
	if err := e.PlaceBack(context.Background(), trade.ID); err != nil {
		t.Fatalf("PlaceBack: %v", err)
	}
	if err := e.Monitor(context.Background(), trade.ID); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	if err := e.PlaceBack(context.Background(), trade.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("PlaceBack on hedged: expected conflict, got %v", err)
	}
	if err := e.Monitor(context.Background(), trade.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Monitor on hedged: expected conflict, got %v", err)
	}
	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeHedged {
		t.Fatalf("hedged trade moved to %v", got.Status)
	}

	result := domain.Result{EventID: "ev1", WinningSelection: "home", Settled: true}
	if err := e.Settle(context.Background(), trade.ID, result); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if err := e.Cancel(context.Background(), trade.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Cancel on settled: expected conflict, got %v", err)
	}
	got, _ = store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeSettled {
		t.Errorf("settled trade moved to %v", got.Status)
	}
}

func TestTransition_ConflictNotBlindlyRetried(t *testing.T) {
	store := newFakeTradeStore()
	gw := &fakeGateway{placeResult: domain.PlaceResult{OrderID: "x", Status: domain.OrderFilled}}
	e := newTestEngine(store, gw)
	trade := scheduleTrade(t, e, engineTestNow.Add(2*time.Hour))

	// A concurrent writer cancels the trade between our read and write.
	cancelled, _ := store.GetByID(context.Background(), trade.ID)
	cancelled.Status = domain.TradeCancelled
	if err := store.Transition(context.Background(), cancelled, domain.TradeScheduled); err != nil {
		t.Fatalf("setup transition: %v", err)
	}

	err := e.PlaceBack(context.Background(), trade.ID)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if gw.placeCalls != 0 {
		t.Errorf("order placed despite stale precondition")
	}
	got, _ := store.GetByID(context.Background(), trade.ID)
	if got.Status != domain.TradeCancelled {
		t.Errorf("conflicting writer's outcome overwritten: %v", got.Status)
	}
}
