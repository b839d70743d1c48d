package domain

import "time"

// BetStatus tracks a manually placed bet. A bet mutates exactly once, from
// pending to one of the terminal statuses.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
	BetVoid    BetStatus = "void"
)

// Terminal reports whether the status is final.
func (s BetStatus) Terminal() bool {
	return s == BetWon || s == BetLost || s == BetVoid
}

// Bet is an alert-driven bet recorded by a human. The fair probability and
// price accepted at creation time are kept so realized closing value can be
// compared to the model afterwards.
type Bet struct {
	ID        string
	EventID   string
	Market    string
	Selection string
	Source    string // bookmaker the bet was placed with
	Odds      float64
	Stake     float64
	FairProb  float64
	FairPrice float64
	Status    BetStatus
	PnL       *float64
	CreatedAt time.Time
	SettledAt *time.Time
}
