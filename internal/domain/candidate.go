package domain

import "time"

// Tier classifies how strong a detected edge is.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Candidate is a point-in-time positive-EV signal: a bookmaker price that
// beats the modeled fair price by at least the configured floor. Candidates
// are immutable; a later poll cycle may emit a fresh candidate for the same
// key, superseding (not overwriting) earlier ones.
type Candidate struct {
	ID           string
	EventID      string
	Market       string
	Selection    string
	Bookmaker    string
	OfferedPrice float64
	FairPrice    float64
	FairProb     float64
	EdgePP       float64 // percentage-point gap in implied probability
	Tier         Tier
	CreatedAt    time.Time
}

// CandidateFilter narrows candidate read-model queries.
type CandidateFilter struct {
	EventID   string
	Tier      Tier
	MinEdgePP float64
	Since     *time.Time
	Limit     int
	Offset    int
}
