package lifecycle

import (
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

func TestMargin_ReferenceArithmetic(t *testing.T) {
	// 10 × 1.08 − 11 × 0.90 − 0.22 = 10.8 − 9.9 − 0.22 = 0.68
	got := Margin(10, 2.08, 11, 1.90, 0.22)
	if math.Abs(got-0.68) > 1e-9 {
		t.Errorf("Margin(10, 2.08, 11, 1.90, 0.22) = %v, want 0.68", got)
	}
}

func TestGrossMargin(t *testing.T) {
	tests := []struct {
		name                                     string
		backStake, backPrice, layStake, layPrice float64
		want                                     float64
	}{
		{"locked profit", 10, 2.08, 11, 1.90, 0.9},
		{"flat", 10, 2.0, 10, 2.0, 0},
		{"locked loss", 10, 2.10, 8.4, 2.50, -1.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GrossMargin(tt.backStake, tt.backPrice, tt.layStake, tt.layPrice)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("GrossMargin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommission_NoChargeOnLosses(t *testing.T) {
	if got := Commission(0.05, 10); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("Commission(0.05, 10) = %v, want 0.5", got)
	}
	if got := Commission(0.05, -3); got != 0 {
		t.Errorf("Commission on a loss = %v, want 0", got)
	}
}

func TestLayStakeFor(t *testing.T) {
	// Stake equalization: 10 × 2.10 / 2.50 = 8.40.
	if got := LayStakeFor(10, 2.10, 2.50); math.Abs(got-8.4) > 1e-9 {
		t.Errorf("LayStakeFor = %v, want 8.4", got)
	}
	if got := LayStakeFor(10, 2.10, 1.0); got != 0 {
		t.Errorf("LayStakeFor at invalid lay price = %v, want 0", got)
	}
}

func TestEvaluateHedge_CutoffScenario(t *testing.T) {
	// Kickoff in 40 minutes, back filled at 2.10 size 10, cutoff 30 minutes
	// before kickoff, best lay stuck at an unfavorable 2.50.
	kickoff := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	trade := domain.StrategyTrade{
		Status:    domain.TradeActive,
		Kickoff:   kickoff,
		BackPrice: 2.10,
		BackStake: 10,
	}
	best := domain.BestPrices{LayPrice: 2.50, LaySize: 100}
	cfg := HedgeConfig{MinMargin: 0.5, Cutoff: 30 * time.Minute, CommissionRate: 0.05}

	// Minute 35: margin is negative, cutoff not reached, no hedge.
	at35 := kickoff.Add(-35 * time.Minute)
	if d := EvaluateHedge(trade, best, at35, cfg); d.Fire {
		t.Errorf("hedge fired at minute 35 with margin %v", d.Margin)
	}

	// Minute 30: cutoff forces the lay at the available price regardless of
	// the margin sign.
	at30 := kickoff.Add(-30 * time.Minute)
	d := EvaluateHedge(trade, best, at30, cfg)
	if !d.Fire || !d.Forced {
		t.Fatalf("expected forced hedge at cutoff, got fire=%v forced=%v", d.Fire, d.Forced)
	}
	if d.LayPrice != 2.50 {
		t.Errorf("forced lay price = %v, want best available 2.50", d.LayPrice)
	}
	if d.Margin >= 0 {
		t.Errorf("expected negative locked margin, got %v", d.Margin)
	}
}

func TestEvaluateHedge_FiresOnMargin(t *testing.T) {
	kickoff := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	trade := domain.StrategyTrade{
		Status:    domain.TradeActive,
		Kickoff:   kickoff,
		BackPrice: 2.10,
		BackStake: 10,
	}
	// Price shortened well below the back price: laying locks a profit.
	best := domain.BestPrices{LayPrice: 1.80, LaySize: 100}
	cfg := HedgeConfig{MinMargin: 0.5, Cutoff: 30 * time.Minute, CommissionRate: 0.05}

	d := EvaluateHedge(trade, best, kickoff.Add(-2*time.Hour), cfg)
	if !d.Fire {
		t.Fatalf("expected margin-triggered hedge, margin %v", d.Margin)
	}
	if d.Forced {
		t.Errorf("margin trigger flagged as forced")
	}
	wantLayStake := LayStakeFor(10, 2.10, 1.80)
	if d.LayStake != wantLayStake {
		t.Errorf("lay stake = %v, want %v", d.LayStake, wantLayStake)
	}
	gross := GrossMargin(10, 2.10, wantLayStake, 1.80)
	wantMargin := gross - Commission(0.05, gross)
	if math.Abs(d.Margin-wantMargin) > 1e-9 {
		t.Errorf("margin = %v, want %v", d.Margin, wantMargin)
	}
}

func TestEvaluateHedge_NoLiquidityNeverFires(t *testing.T) {
	kickoff := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	trade := domain.StrategyTrade{Status: domain.TradeActive, Kickoff: kickoff, BackPrice: 2.10, BackStake: 10}
	cfg := HedgeConfig{MinMargin: 0.5, Cutoff: 30 * time.Minute}

	// Even past the cutoff, an empty book cannot be hedged into.
	d := EvaluateHedge(trade, domain.BestPrices{}, kickoff, cfg)
	if d.Fire {
		t.Errorf("hedge fired with no lay liquidity")
	}
}
