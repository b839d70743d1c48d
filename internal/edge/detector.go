// Package edge compares bookmaker quotes against modeled fair prices and
// emits tiered positive-EV candidates.
package edge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/edgebot/internal/domain"
	"github.com/alanyoungcy/edgebot/internal/fairprice"
)

// Config holds the detector thresholds, all in probability percentage points.
type Config struct {
	// MinEdgePP is the floor below which no candidate is emitted. This is a
	// false-positive filter, not a rounding artifact.
	MinEdgePP float64
	// HighPP and MediumPP are the tier thresholds, evaluated high to low.
	HighPP   float64
	MediumPP float64
}

// Detector turns a market's quote window into candidates. Evaluate is pure;
// persistence and publishing happen in the runner.
type Detector struct {
	model  *fairprice.Model
	cfg    Config
	logger *slog.Logger
}

// New creates a Detector around the given fair price model.
func New(model *fairprice.Model, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		model:  model,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "edge_detector")),
	}
}

// EdgePP is the percentage-point gap between the fair implied probability
// and the implied probability of the offered decimal price. Positive means
// the offered price is longer than fair, i.e. +EV for the backer.
func EdgePP(fairProb, offeredPrice float64) float64 {
	if offeredPrice <= 0 {
		return 0
	}
	return 100 * (fairProb - 1.0/offeredPrice)
}

// TierFor maps an edge to its tier. Thresholds are checked high to low and
// the first match wins, so the mapping is a deterministic step function.
func (c Config) TierFor(edgePP float64) domain.Tier {
	switch {
	case edgePP >= c.HighPP:
		return domain.TierHigh
	case edgePP >= c.MediumPP:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

// Evaluate runs one detection pass over the quote window of a single
// event/market. At most one candidate per (selection, bookmaker) is emitted,
// keyed by that bookmaker's most recent quote. Selections without a fair
// price (below quorum) are skipped silently.
func (d *Detector) Evaluate(quotes []domain.Quote, now time.Time) []domain.Candidate {
	if len(quotes) == 0 {
		return nil
	}

	fair, err := d.model.EstimateMarket(quotes, now)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			d.logger.Debug("skipping market, below quote quorum",
				slog.String("event_id", quotes[0].EventID),
				slog.String("market", quotes[0].Market),
			)
			return nil
		}
		d.logger.Warn("fair price estimation failed",
			slog.String("event_id", quotes[0].EventID),
			slog.String("market", quotes[0].Market),
			slog.String("error", err.Error()),
		)
		return nil
	}

	// Most recent quote per (selection, bookmaker) within this cycle. The
	// model's freshness cutoff applies here too: a quote the model already
	// discarded as stale must not key a candidate, even when the cycle's
	// quote window is configured wider than the model's.
	stale := now.Add(-d.model.MaxQuoteAge())
	type key struct{ selection, bookmaker string }
	latest := make(map[key]domain.Quote)
	for _, q := range quotes {
		if q.ObservedAt.Before(stale) {
			continue
		}
		k := key{q.Selection, q.Bookmaker}
		if prev, ok := latest[k]; !ok || q.ObservedAt.After(prev.ObservedAt) {
			latest[k] = q
		}
	}

	var out []domain.Candidate
	for k, q := range latest {
		fp, ok := fair[k.selection]
		if !ok {
			continue
		}
		edge := EdgePP(fp.Prob, q.Price)
		if edge < d.cfg.MinEdgePP {
			continue
		}
		out = append(out, domain.Candidate{
			ID:           uuid.New().String(),
			EventID:      q.EventID,
			Market:       q.Market,
			Selection:    q.Selection,
			Bookmaker:    q.Bookmaker,
			OfferedPrice: q.Price,
			FairPrice:    fp.Price,
			FairProb:     fp.Prob,
			EdgePP:       edge,
			Tier:         d.cfg.TierFor(edge),
			CreatedAt:    now,
		})
	}
	return out
}
