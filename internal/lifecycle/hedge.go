package lifecycle

import (
	"math"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// HedgeConfig holds the hedge-trigger parameters.
type HedgeConfig struct {
	// MinMargin is the locked margin (net of commission) at which the lay
	// fires on price grounds.
	MinMargin float64
	// Cutoff is how long before kickoff the lay is forced at the best
	// available price regardless of margin sign, bounding open-position
	// risk when the price never moves favorably.
	Cutoff time.Duration
	// CommissionRate is the exchange's cut of net market winnings.
	CommissionRate float64
}

// HedgeDecision is the outcome of one hedge-trigger evaluation.
type HedgeDecision struct {
	Fire       bool
	Forced     bool // true when the time cutoff fired, not the margin
	LayPrice   float64
	LayStake   float64
	Margin     float64
	Commission float64
}

// GrossMargin is the locked pre-commission margin of a back/lay pair.
func GrossMargin(backStake, backPrice, layStake, layPrice float64) float64 {
	return backStake*(backPrice-1) - layStake*(layPrice-1)
}

// Commission is the exchange commission on a gross win. Losses pay no
// commission.
func Commission(rate, grossWin float64) float64 {
	return rate * math.Max(0, grossWin)
}

// Margin is the locked margin net of commission already computed.
func Margin(backStake, backPrice, layStake, layPrice, commissionPaid float64) float64 {
	return GrossMargin(backStake, backPrice, layStake, layPrice) - commissionPaid
}

// LayStakeFor sizes the lay leg so the position is flat across outcomes
// (stake equalization), rounded to cents.
func LayStakeFor(backStake, backPrice, layPrice float64) float64 {
	if layPrice <= 1 {
		return 0
	}
	return math.Round(backStake*backPrice/layPrice*100) / 100
}

// EvaluateHedge runs the hedge trigger for an active trade against the
// current top-of-book. It fires when the locked margin meets the configured
// minimum, or unconditionally once the pre-kickoff cutoff is reached,
// whichever occurs first. A missing lay price (no liquidity) never fires;
// the next cycle re-evaluates.
func EvaluateHedge(t domain.StrategyTrade, best domain.BestPrices, now time.Time, cfg HedgeConfig) HedgeDecision {
	if best.LayPrice <= 1 {
		return HedgeDecision{}
	}

	layStake := LayStakeFor(t.BackStake, t.BackPrice, best.LayPrice)
	gross := GrossMargin(t.BackStake, t.BackPrice, layStake, best.LayPrice)
	commission := Commission(cfg.CommissionRate, gross)
	margin := gross - commission

	d := HedgeDecision{
		LayPrice:   best.LayPrice,
		LayStake:   layStake,
		Margin:     margin,
		Commission: commission,
	}

	switch {
	case margin >= cfg.MinMargin:
		d.Fire = true
	case !now.Before(t.Kickoff.Add(-cfg.Cutoff)):
		d.Fire = true
		d.Forced = true
	}
	return d
}
