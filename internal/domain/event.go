package domain

import "time"

// Event is a sporting fixture as supplied by the discovery feed. The ID is
// the provider's stable external identifier; updates from the feed are
// upserts keyed by it.
type Event struct {
	ID        string
	Sport     string
	HomeTeam  string
	AwayTeam  string
	StartTime time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Name returns a human-readable fixture label.
func (e Event) Name() string {
	return e.HomeTeam + " v " + e.AwayTeam
}

// Result is the final outcome of an event as reported by the result feed.
type Result struct {
	EventID          string
	WinningSelection string
	Settled          bool
	SettledAt        time.Time
}
