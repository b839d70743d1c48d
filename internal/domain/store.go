package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EventStore persists fixtures from the discovery feed.
type EventStore interface {
	Upsert(ctx context.Context, ev Event) error
	UpsertBatch(ctx context.Context, evs []Event) error
	GetByID(ctx context.Context, id string) (Event, error)
	// ListUpcoming returns events starting within the horizon, soonest first.
	ListUpcoming(ctx context.Context, horizon time.Duration, opts ListOpts) ([]Event, error)
}

// QuoteStore is the append-only record of observed bookmaker prices.
// Inserts are idempotent on the quote natural key.
type QuoteStore interface {
	InsertBatch(ctx context.Context, quotes []Quote) (int64, error)
	// ListWindow returns all quotes for one event/market observed at or
	// after since, oldest first.
	ListWindow(ctx context.Context, eventID, market string, since time.Time) ([]Quote, error)
	ListBefore(ctx context.Context, before time.Time) ([]Quote, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CandidateStore persists detected opportunities. Rows are never updated;
// later candidates for the same key supersede earlier ones by recency.
type CandidateStore interface {
	InsertBatch(ctx context.Context, cands []Candidate) error
	List(ctx context.Context, filter CandidateFilter) ([]Candidate, error)
	ListBefore(ctx context.Context, before time.Time) ([]Candidate, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists strategy trades. Transition is the single mutation
// path: it writes the full trade row guarded by a compare-and-set on the
// expected prior status, returning ErrConflict when another writer got
// there first.
type TradeStore interface {
	Create(ctx context.Context, t StrategyTrade) error
	GetByID(ctx context.Context, id string) (StrategyTrade, error)
	// GetByKey looks a trade up by its uniqueness key.
	GetByKey(ctx context.Context, strategy, eventID, selectionID string) (StrategyTrade, error)
	List(ctx context.Context, filter TradeFilter) ([]StrategyTrade, error)
	// Transition persists t where the stored status still equals expected.
	// Returns ErrConflict if the guard fails, ErrNotFound if no such trade.
	Transition(ctx context.Context, t StrategyTrade, expected TradeStatus) error
}

// BetStore persists manual bets.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByStatus(ctx context.Context, status BetStatus, opts ListOpts) ([]Bet, error)
	// Settle moves a pending bet to a terminal status, recording P&L.
	// Returns ErrConflict if the bet is no longer pending.
	Settle(ctx context.Context, id string, status BetStatus, pnl float64, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of lifecycle transitions,
// quarantined quotes, and archival runs.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
