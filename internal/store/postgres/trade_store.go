package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL. Transition is
// the only mutation path after Create; it compare-and-sets on the stored
// status so concurrent engine passes cannot clobber each other.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Create inserts a new trade. Returns ErrAlreadyExists when a trade for the
// same (strategy, event, selection) key is already present.
func (s *TradeStore) Create(ctx context.Context, t domain.StrategyTrade) error {
	const query = `
		INSERT INTO strategy_trades
			(id, strategy, event_id, market_id, selection_id, kickoff, status,
			 back_order_id, back_price, back_stake, lay_order_id, lay_price, lay_stake,
			 margin, commission_paid, realized_pnl, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Strategy, t.EventID, t.MarketID, t.SelectionID, t.Kickoff, string(t.Status),
		t.BackOrderID, t.BackPrice, t.BackStake, t.LayOrderID, t.LayPrice, t.LayStake,
		t.Margin, t.CommissionPaid, t.RealizedPnL, t.LastError, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: trade %s/%s/%s: %w", t.Strategy, t.EventID, t.SelectionID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

const selectTradeColumns = `
	id, strategy, event_id, market_id, selection_id, kickoff, status,
	back_order_id, back_price, back_stake, lay_order_id, lay_price, lay_stake,
	margin, commission_paid, realized_pnl, last_error, created_at, updated_at`

// GetByID returns a trade by its ID.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.StrategyTrade, error) {
	query := `SELECT` + selectTradeColumns + ` FROM strategy_trades WHERE id = $1`
	t, err := scanTrade(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StrategyTrade{}, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StrategyTrade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// GetByKey returns the trade for a (strategy, event, selection) key.
func (s *TradeStore) GetByKey(ctx context.Context, strategy, eventID, selectionID string) (domain.StrategyTrade, error) {
	query := `SELECT` + selectTradeColumns + `
		FROM strategy_trades WHERE strategy = $1 AND event_id = $2 AND selection_id = $3`
	t, err := scanTrade(s.pool.QueryRow(ctx, query, strategy, eventID, selectionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StrategyTrade{}, fmt.Errorf("postgres: trade %s/%s/%s: %w", strategy, eventID, selectionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StrategyTrade{}, fmt.Errorf("postgres: get trade by key: %w", err)
	}
	return t, nil
}

// List returns trades matching the filter, ordered by kickoff.
func (s *TradeStore) List(ctx context.Context, filter domain.TradeFilter) ([]domain.StrategyTrade, error) {
	query := `SELECT` + selectTradeColumns + ` FROM strategy_trades WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Strategy != "" {
		query += fmt.Sprintf(" AND strategy = $%d", argIdx)
		args = append(args, filter.Strategy)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.EventID != "" {
		query += fmt.Sprintf(" AND event_id = $%d", argIdx)
		args = append(args, filter.EventID)
		argIdx++
	}

	query += " ORDER BY kickoff ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.StrategyTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

// Transition writes the full trade row guarded by the expected prior status.
// Zero rows affected means another writer moved the trade first; the caller
// gets ErrConflict and must re-read before deciding anything.
func (s *TradeStore) Transition(ctx context.Context, t domain.StrategyTrade, expected domain.TradeStatus) error {
	const query = `
		UPDATE strategy_trades SET
			status = $1, back_order_id = $2, back_price = $3, back_stake = $4,
			lay_order_id = $5, lay_price = $6, lay_stake = $7,
			margin = $8, commission_paid = $9, realized_pnl = $10,
			last_error = $11, updated_at = $12
		WHERE id = $13 AND status = $14`

	tag, err := s.pool.Exec(ctx, query,
		string(t.Status), t.BackOrderID, t.BackPrice, t.BackStake,
		t.LayOrderID, t.LayPrice, t.LayStake,
		t.Margin, t.CommissionPaid, t.RealizedPnL,
		t.LastError, t.UpdatedAt,
		t.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("postgres: transition trade %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing trade from a lost race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM strategy_trades WHERE id = $1)`, t.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: transition trade %s: %w", t.ID, err)
		}
		if !exists {
			return fmt.Errorf("postgres: trade %s: %w", t.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: trade %s no longer %s: %w", t.ID, expected, domain.ErrConflict)
	}
	return nil
}

func scanTrade(row pgx.Row) (domain.StrategyTrade, error) {
	var t domain.StrategyTrade
	var status string
	err := row.Scan(
		&t.ID, &t.Strategy, &t.EventID, &t.MarketID, &t.SelectionID, &t.Kickoff, &status,
		&t.BackOrderID, &t.BackPrice, &t.BackStake, &t.LayOrderID, &t.LayPrice, &t.LayStake,
		&t.Margin, &t.CommissionPaid, &t.RealizedPnL, &t.LastError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.StrategyTrade{}, err
	}
	t.Status = domain.TradeStatus(status)
	return t, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
