package domain

import "time"

// Quote is a single observed bookmaker price. Quotes are immutable and
// append-only; the natural key (event, market, selection, bookmaker,
// observed-at) makes re-ingestion idempotent.
type Quote struct {
	ID         int64
	EventID    string
	Market     string // e.g. "match_odds", "totals"
	Selection  string // e.g. "home", "away", "over"
	Bookmaker  string
	Price      float64  // decimal odds
	Line       *float64 // optional point/handicap line
	ObservedAt time.Time
}

// ImpliedProb returns the implied probability of the quoted decimal price.
// Returns 0 for non-positive prices.
func (q Quote) ImpliedProb() float64 {
	if q.Price <= 0 {
		return 0
	}
	return 1.0 / q.Price
}

// FairPrice is the de-vigged consensus estimate for one selection, derived
// from a window of quotes. It is never persisted on its own.
type FairPrice struct {
	EventID    string
	Market     string
	Selection  string
	Prob       float64 // fair probability, in (0, 1)
	Price      float64 // reciprocal of Prob
	Bookmakers int     // number of contributing bookmakers
	AsOf       time.Time
}
