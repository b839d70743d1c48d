// Package fairprice derives de-vigged consensus probabilities from windows
// of bookmaker quotes. The model is pure: it holds no state beyond its
// configuration and performs no I/O.
package fairprice

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// probEpsilon keeps probabilities strictly inside (0, 1) so reciprocals and
// ratios never hit a division singularity.
const probEpsilon = 1e-9

// Config holds the model parameters.
type Config struct {
	// MaxQuoteAge excludes quotes observed longer ago than this.
	MaxQuoteAge time.Duration
	// MinBookmakers is the quorum of independent sources required before a
	// fair price is reported. Below it the model returns
	// domain.ErrInsufficientData.
	MinBookmakers int
}

// Model computes fair probabilities for the selections of one market.
type Model struct {
	cfg Config
}

// New creates a Model. Zero or negative config fields fall back to a
// 10-minute window and a quorum of 2.
func New(cfg Config) *Model {
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = 10 * time.Minute
	}
	if cfg.MinBookmakers <= 0 {
		cfg.MinBookmakers = 2
	}
	return &Model{cfg: cfg}
}

// MaxQuoteAge returns the model's quote freshness window.
func (m *Model) MaxQuoteAge() time.Duration {
	return m.cfg.MaxQuoteAge
}

// EstimateMarket computes fair prices for every selection in one
// event/market from the supplied quote window.
//
// Per bookmaker, only the most recent fresh quote per selection is used.
// Each bookmaker's implied probabilities are normalized so they sum to 1
// (multiplicative vig removal); the fair probability per selection is the
// equal-weight average of the normalized probabilities over all bookmakers
// that quote the full market. Bookmakers quoting fewer than two selections
// cannot be de-vigged and are ignored.
//
// Returns domain.ErrInsufficientData when fewer than the quorum of
// bookmakers contribute.
func (m *Model) EstimateMarket(quotes []domain.Quote, now time.Time) (map[string]domain.FairPrice, error) {
	if len(quotes) == 0 {
		return nil, domain.ErrInsufficientData
	}
	eventID, market := quotes[0].EventID, quotes[0].Market
	cutoff := now.Add(-m.cfg.MaxQuoteAge)

	// Latest fresh quote per (bookmaker, selection).
	latest := make(map[string]map[string]domain.Quote)
	for _, q := range quotes {
		if q.EventID != eventID || q.Market != market {
			return nil, fmt.Errorf("fairprice: mixed markets in quote window: %w", domain.ErrInvalidParams)
		}
		if q.ObservedAt.Before(cutoff) || q.Price <= 1 {
			continue
		}
		sels, ok := latest[q.Bookmaker]
		if !ok {
			sels = make(map[string]domain.Quote)
			latest[q.Bookmaker] = sels
		}
		if prev, ok := sels[q.Selection]; !ok || q.ObservedAt.After(prev.ObservedAt) {
			sels[q.Selection] = q
		}
	}

	// De-vig per bookmaker, accumulate per selection.
	sums := make(map[string]float64)
	counts := make(map[string]int)
	contributors := 0
	for _, sels := range latest {
		if len(sels) < 2 {
			continue
		}
		var total float64
		for _, q := range sels {
			total += q.ImpliedProb()
		}
		if total <= 0 {
			continue
		}
		contributors++
		for sel, q := range sels {
			sums[sel] += q.ImpliedProb() / total
			counts[sel]++
		}
	}
	if contributors < m.cfg.MinBookmakers {
		return nil, domain.ErrInsufficientData
	}

	out := make(map[string]domain.FairPrice, len(sums))
	for sel, sum := range sums {
		if counts[sel] < m.cfg.MinBookmakers {
			// A selection quoted by too few books gets no fair price even
			// when the market as a whole has quorum.
			continue
		}
		prob := clampProb(sum / float64(counts[sel]))
		out[sel] = domain.FairPrice{
			EventID:    eventID,
			Market:     market,
			Selection:  sel,
			Prob:       prob,
			Price:      1.0 / prob,
			Bookmakers: counts[sel],
			AsOf:       now,
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrInsufficientData
	}
	return out, nil
}

// Estimate computes the fair price for a single selection.
func (m *Model) Estimate(quotes []domain.Quote, selection string, now time.Time) (domain.FairPrice, error) {
	all, err := m.EstimateMarket(quotes, now)
	if err != nil {
		return domain.FairPrice{}, err
	}
	fp, ok := all[selection]
	if !ok {
		return domain.FairPrice{}, domain.ErrInsufficientData
	}
	return fp, nil
}

func clampProb(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}
