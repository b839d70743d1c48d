package edge

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/fairprice"
)

var testNow = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultDetector() *Detector {
	model := fairprice.New(fairprice.Config{MaxQuoteAge: 10 * time.Minute, MinBookmakers: 2})
	return New(model, Config{MinEdgePP: 1.0, HighPP: 5.0, MediumPP: 2.5}, testLogger())
}

func quote(book, sel string, price float64, age time.Duration) domain.Quote {
	return domain.Quote{
		EventID:    "ev1",
		Market:     "match_odds",
		Selection:  sel,
		Bookmaker:  book,
		Price:      price,
		ObservedAt: testNow.Add(-age),
	}
}

func TestEdgePP(t *testing.T) {
	// Fair prob 0.5 vs offered 2.10 (implied 47.62%) is a +2.38pp edge.
	got := EdgePP(0.5, 2.10)
	want := 100 * (0.5 - 1.0/2.10)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("EdgePP = %v, want %v", got, want)
	}
	if got <= 0 {
		t.Errorf("expected positive edge, got %v", got)
	}
}

func TestEdgePP_MonotonicInGap(t *testing.T) {
	// Edge must strictly increase as the offered price lengthens past fair.
	prev := math.Inf(-1)
	for price := 1.8; price <= 3.0; price += 0.1 {
		e := EdgePP(0.5, price)
		if e <= prev {
			t.Fatalf("edge not monotonic: EdgePP(0.5, %v) = %v, previous %v", price, e, prev)
		}
		prev = e
	}
}

func TestTierFor_Deterministic(t *testing.T) {
	cfg := Config{HighPP: 5.0, MediumPP: 2.5}
	tests := []struct {
		edge float64
		want domain.Tier
	}{
		{7.2, domain.TierHigh},
		{5.0, domain.TierHigh}, // threshold inclusive
		{4.99, domain.TierMedium},
		{2.5, domain.TierMedium},
		{2.49, domain.TierLow},
		{0, domain.TierLow},
		{-3, domain.TierLow},
	}
	for _, tt := range tests {
		if got := cfg.TierFor(tt.edge); got != tt.want {
			t.Errorf("TierFor(%v) = %v, want %v", tt.edge, got, tt.want)
		}
		// Same edge, same tier, every time.
		if again := cfg.TierFor(tt.edge); again != cfg.TierFor(tt.edge) {
			t.Errorf("TierFor(%v) not deterministic", tt.edge)
		}
	}
}

func TestEvaluate_EmitsCandidateAboveFloor(t *testing.T) {
	// Sharp consensus says 50/50; gamma offers home at 2.20 (45.45% implied),
	// a 4.55pp edge.
	quotes := []domain.Quote{
		quote("alpha", "home", 1.95, time.Minute),
		quote("alpha", "away", 1.95, time.Minute),
		quote("beta", "home", 1.95, time.Minute),
		quote("beta", "away", 1.95, time.Minute),
		quote("gamma", "home", 2.20, time.Minute),
		quote("gamma", "away", 1.75, time.Minute),
	}

	cands := defaultDetector().Evaluate(quotes, testNow)

	var found *domain.Candidate
	for i := range cands {
		if cands[i].Bookmaker == "gamma" && cands[i].Selection == "home" {
			found = &cands[i]
		}
	}
	if found == nil {
		t.Fatalf("expected gamma/home candidate, got %v", cands)
	}
	if found.Tier != domain.TierMedium {
		t.Errorf("tier = %v, want medium", found.Tier)
	}
	if found.EdgePP < 1.0 {
		t.Errorf("edge %v below configured floor", found.EdgePP)
	}
	if found.OfferedPrice != 2.20 {
		t.Errorf("offered price = %v, want 2.20", found.OfferedPrice)
	}
}

func TestEvaluate_FloorSuppressesSmallEdges(t *testing.T) {
	// All books in line: every edge is negative or tiny, nothing emitted.
	quotes := []domain.Quote{
		quote("alpha", "home", 1.91, time.Minute),
		quote("alpha", "away", 1.91, time.Minute),
		quote("beta", "home", 1.91, time.Minute),
		quote("beta", "away", 1.91, time.Minute),
	}

	if cands := defaultDetector().Evaluate(quotes, testNow); len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}

func TestEvaluate_InsufficientDataSkipsSilently(t *testing.T) {
	quotes := []domain.Quote{
		quote("alpha", "home", 2.50, time.Minute),
		quote("alpha", "away", 1.50, time.Minute),
	}

	if cands := defaultDetector().Evaluate(quotes, testNow); cands != nil {
		t.Errorf("expected nil candidates below quorum, got %v", cands)
	}
}

func TestEvaluate_DedupWithinCycle(t *testing.T) {
	// gamma quoted home twice within the window; only the most recent quote
	// may produce a candidate.
	quotes := []domain.Quote{
		quote("alpha", "home", 1.95, time.Minute),
		quote("alpha", "away", 1.95, time.Minute),
		quote("beta", "home", 1.95, time.Minute),
		quote("beta", "away", 1.95, time.Minute),
		quote("gamma", "home", 2.40, 3*time.Minute),
		quote("gamma", "home", 2.20, time.Minute),
		quote("gamma", "away", 1.75, time.Minute),
	}

	cands := defaultDetector().Evaluate(quotes, testNow)

	seen := 0
	for _, c := range cands {
		if c.Bookmaker == "gamma" && c.Selection == "home" {
			seen++
			if c.OfferedPrice != 2.20 {
				t.Errorf("candidate keyed to stale quote: price %v, want 2.20", c.OfferedPrice)
			}
		}
	}
	if seen != 1 {
		t.Errorf("expected exactly one gamma/home candidate, got %d", seen)
	}
}

func TestEvaluate_StaleQuoteNeverKeysCandidate(t *testing.T) {
	// gamma's only home quote is well past the model's 10m freshness
	// cutoff. The consensus ignores it, so the detector must too, even when
	// the caller hands over a wider quote window.
	quotes := []domain.Quote{
		quote("alpha", "home", 1.95, time.Minute),
		quote("alpha", "away", 1.95, time.Minute),
		quote("beta", "home", 1.95, time.Minute),
		quote("beta", "away", 1.95, time.Minute),
		quote("gamma", "home", 2.60, 30*time.Minute),
	}

	cands := defaultDetector().Evaluate(quotes, testNow)

	for _, c := range cands {
		if c.Bookmaker == "gamma" {
			t.Errorf("candidate keyed to stale quote: %+v", c)
		}
	}
}

func TestEvaluate_ReEmissionIsIndependentAcrossCycles(t *testing.T) {
	quotes := []domain.Quote{
		quote("alpha", "home", 1.95, time.Minute),
		quote("alpha", "away", 1.95, time.Minute),
		quote("beta", "home", 1.95, time.Minute),
		quote("beta", "away", 1.95, time.Minute),
		quote("gamma", "home", 2.20, time.Minute),
		quote("gamma", "away", 1.75, time.Minute),
	}

	d := defaultDetector()
	first := d.Evaluate(quotes, testNow)
	second := d.Evaluate(quotes, testNow.Add(30*time.Second))
	if len(first) == 0 || len(second) == 0 {
		t.Fatalf("persisting edge must re-emit: first %d, second %d", len(first), len(second))
	}
	if first[0].ID == second[0].ID {
		t.Errorf("re-emitted candidate reused ID %s", first[0].ID)
	}
}
