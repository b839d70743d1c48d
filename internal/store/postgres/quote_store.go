package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL. The quotes table
// is append-only; a uniqueness constraint on the natural key makes
// re-ingestion of the same observation a no-op.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// InsertBatch inserts quotes, skipping any whose natural key already exists.
// It returns the number of rows actually inserted.
func (s *QuoteStore) InsertBatch(ctx context.Context, quotes []domain.Quote) (int64, error) {
	if len(quotes) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO quotes (event_id, market, selection, bookmaker, price, line, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, market, selection, bookmaker, observed_at) DO NOTHING`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin insert quotes: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for _, q := range quotes {
		tag, err := tx.Exec(ctx, query,
			q.EventID, q.Market, q.Selection, q.Bookmaker, q.Price, q.Line, q.ObservedAt)
		if err != nil {
			return 0, fmt.Errorf("postgres: insert quote %s/%s/%s: %w", q.EventID, q.Selection, q.Bookmaker, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit insert quotes: %w", err)
	}
	return inserted, nil
}

// ListWindow returns all quotes for one event and market observed at or
// after since, oldest first.
func (s *QuoteStore) ListWindow(ctx context.Context, eventID, market string, since time.Time) ([]domain.Quote, error) {
	const query = `
		SELECT id, event_id, market, selection, bookmaker, price, line, observed_at
		FROM quotes
		WHERE event_id = $1 AND market = $2 AND observed_at >= $3
		ORDER BY observed_at ASC`

	rows, err := s.pool.Query(ctx, query, eventID, market, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quote window: %w", err)
	}
	defer rows.Close()
	return scanQuotes(rows)
}

// ListBefore returns quotes observed before the cutoff, oldest first. Used
// by the cold-storage archiver ahead of DeleteBefore.
func (s *QuoteStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	const query = `
		SELECT id, event_id, market, selection, bookmaker, price, line, observed_at
		FROM quotes
		WHERE observed_at < $1
		ORDER BY observed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes before: %w", err)
	}
	defer rows.Close()
	return scanQuotes(rows)
}

// DeleteBefore removes quotes observed before the cutoff, returning the
// number of rows deleted.
func (s *QuoteStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quotes before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanQuotes(rows pgx.Rows) ([]domain.Quote, error) {
	var quotes []domain.Quote
	for rows.Next() {
		var q domain.Quote
		if err := rows.Scan(&q.ID, &q.EventID, &q.Market, &q.Selection,
			&q.Bookmaker, &q.Price, &q.Line, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: quote rows: %w", err)
	}
	return quotes, nil
}

var _ domain.QuoteStore = (*QuoteStore)(nil)
