package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// CandidateStore implements domain.CandidateStore using PostgreSQL.
// Candidates are immutable rows; supersession is by recency, not update.
type CandidateStore struct {
	pool *pgxpool.Pool
}

// NewCandidateStore creates a new CandidateStore backed by the given pool.
func NewCandidateStore(pool *pgxpool.Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// InsertBatch inserts a batch of detected candidates in one transaction.
func (s *CandidateStore) InsertBatch(ctx context.Context, cands []domain.Candidate) error {
	if len(cands) == 0 {
		return nil
	}

	const query = `
		INSERT INTO candidates
			(id, event_id, market, selection, bookmaker, offered_price, fair_price, fair_prob, edge_pp, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin insert candidates: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range cands {
		if _, err := tx.Exec(ctx, query,
			c.ID, c.EventID, c.Market, c.Selection, c.Bookmaker,
			c.OfferedPrice, c.FairPrice, c.FairProb, c.EdgePP, string(c.Tier), c.CreatedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert candidate %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit insert candidates: %w", err)
	}
	return nil
}

// List returns candidates matching the filter, strongest edge first within
// newest-first recency.
func (s *CandidateStore) List(ctx context.Context, filter domain.CandidateFilter) ([]domain.Candidate, error) {
	query := `
		SELECT id, event_id, market, selection, bookmaker, offered_price, fair_price, fair_prob, edge_pp, tier, created_at
		FROM candidates WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.EventID != "" {
		query += fmt.Sprintf(" AND event_id = $%d", argIdx)
		args = append(args, filter.EventID)
		argIdx++
	}
	if filter.Tier != "" {
		query += fmt.Sprintf(" AND tier = $%d", argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	if filter.MinEdgePP > 0 {
		query += fmt.Sprintf(" AND edge_pp >= $%d", argIdx)
		args = append(args, filter.MinEdgePP)
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC, edge_pp DESC"

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
		return nil, fmt.Errorf("postgres: list candidates: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ListBefore returns candidates created before the cutoff, oldest first.
func (s *CandidateStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Candidate, error) {
	const query = `
		SELECT id, event_id, market, selection, bookmaker, offered_price, fair_price, fair_prob, edge_pp, tier, created_at
		FROM candidates
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list candidates before: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// DeleteBefore removes candidates created before the cutoff.
func (s *CandidateStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete candidates before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanCandidates(rows pgx.Rows) ([]domain.Candidate, error) {
	var cands []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var tier string
		if err := rows.Scan(&c.ID, &c.EventID, &c.Market, &c.Selection, &c.Bookmaker,
			&c.OfferedPrice, &c.FairPrice, &c.FairProb, &c.EdgePP, &tier, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		c.Tier = domain.Tier(tier)
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: candidate rows: %w", err)
	}
	return cands, nil
}

var _ domain.CandidateStore = (*CandidateStore)(nil)
