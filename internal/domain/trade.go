package domain

import "time"

// TradeStatus tracks the lifecycle of an automated strategy trade.
type TradeStatus string

const (
	TradeScheduled TradeStatus = "scheduled" // fixture discovered, back order not yet placed
	TradeActive    TradeStatus = "active"    // back stake filled, position open and unhedged
	TradeHedged    TradeStatus = "hedged"    // both legs filled, margin locked
	TradeSettled   TradeStatus = "settled"   // event result known, P&L recorded
	TradeCancelled TradeStatus = "cancelled" // withdrawn before any unhedged exposure
	TradeFailed    TradeStatus = "failed"    // unrecoverable error, reason in LastError
)

// Terminal reports whether no further transitions are allowed from s.
func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeSettled, TradeCancelled, TradeFailed:
		return true
	}
	return false
}

// Side is the direction of an exchange order.
type Side string

const (
	SideBack Side = "back" // bet for the outcome
	SideLay  Side = "lay"  // bet against the outcome
)

// StrategyTrade is the mutable lifecycle entity driven by the trade engine.
// Exactly one trade exists per (strategy, event, selection); the store
// enforces this with a uniqueness constraint. Once the trade reaches hedged
// or settled, the back/lay leg fields are frozen.
type StrategyTrade struct {
	ID          string
	Strategy    string
	EventID     string
	MarketID    string // exchange market identifier
	SelectionID string // exchange selection identifier
	Kickoff     time.Time

	Status TradeStatus

	BackOrderID string
	BackPrice   float64
	BackStake   float64
	LayOrderID  string
	LayPrice    float64
	LayStake    float64

	Margin         float64 // locked at hedge time, net of commission
	CommissionPaid float64
	RealizedPnL    *float64 // set at settlement

	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TradeFilter narrows trade read-model queries. Results are ordered by
// kickoff time.
type TradeFilter struct {
	Strategy string
	Status   TradeStatus
	EventID  string
	Limit    int
	Offset   int
}
