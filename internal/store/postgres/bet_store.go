package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

// Create inserts a new pending bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (id, event_id, market, selection, source, odds, stake, fair_prob, fair_price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.EventID, b.Market, b.Selection, b.Source,
		b.Odds, b.Stake, b.FairProb, b.FairPrice, string(b.Status), b.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: bet %s: %w", b.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

const selectBetColumns = `
	id, event_id, market, selection, source, odds, stake, fair_prob, fair_price, status, pnl, created_at, settled_at`

// GetByID returns a bet by ID.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	query := `SELECT` + selectBetColumns + ` FROM bets WHERE id = $1`
	b, err := scanBet(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, fmt.Errorf("postgres: bet %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// ListByStatus returns bets in the given status, newest first.
func (s *BetStore) ListByStatus(ctx context.Context, status domain.BetStatus, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT` + selectBetColumns + ` FROM bets WHERE status = $1 ORDER BY created_at DESC`
	args := []any{string(status)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// Settle moves a pending bet to a terminal status exactly once. The status
// guard makes a second settlement attempt an ErrConflict instead of a
// silent double-write.
func (s *BetStore) Settle(ctx context.Context, id string, status domain.BetStatus, pnl float64, at time.Time) error {
	const query = `
		UPDATE bets SET status = $1, pnl = $2, settled_at = $3
		WHERE id = $4 AND status = $5`

	tag, err := s.pool.Exec(ctx, query, string(status), pnl, at, id, string(domain.BetPending))
	if err != nil {
		return fmt.Errorf("postgres: settle bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bets WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: settle bet %s: %w", id, err)
		}
		if !exists {
			return fmt.Errorf("postgres: bet %s: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("postgres: bet %s not pending: %w", id, domain.ErrConflict)
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var status string
	err := row.Scan(
		&b.ID, &b.EventID, &b.Market, &b.Selection, &b.Source,
		&b.Odds, &b.Stake, &b.FairProb, &b.FairPrice, &status,
		&b.PnL, &b.CreatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Status = domain.BetStatus(status)
	return b, nil
}

var _ domain.BetStore = (*BetStore)(nil)
