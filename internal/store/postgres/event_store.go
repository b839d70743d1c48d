package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const upsertEventQuery = `
	INSERT INTO events (id, sport, home_team, away_team, start_time)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		sport = EXCLUDED.sport,
		home_team = EXCLUDED.home_team,
		away_team = EXCLUDED.away_team,
		start_time = EXCLUDED.start_time,
		updated_at = NOW()`

// Upsert inserts or updates a fixture keyed by its provider ID.
func (s *EventStore) Upsert(ctx context.Context, ev domain.Event) error {
	_, err := s.pool.Exec(ctx, upsertEventQuery,
		ev.ID, ev.Sport, ev.HomeTeam, ev.AwayTeam, ev.StartTime)
	if err != nil {
		return fmt.Errorf("postgres: upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// UpsertBatch upserts a batch of fixtures in a single transaction.
func (s *EventStore) UpsertBatch(ctx context.Context, evs []domain.Event) error {
	if len(evs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert events: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range evs {
		if _, err := tx.Exec(ctx, upsertEventQuery,
			ev.ID, ev.Sport, ev.HomeTeam, ev.AwayTeam, ev.StartTime); err != nil {
			return fmt.Errorf("postgres: upsert event %s: %w", ev.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit upsert events: %w", err)
	}
	return nil
}

// GetByID returns a fixture by its provider ID.
func (s *EventStore) GetByID(ctx context.Context, id string) (domain.Event, error) {
	const query = `
		SELECT id, sport, home_team, away_team, start_time, created_at, updated_at
		FROM events WHERE id = $1`

	var ev domain.Event
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&ev.ID, &ev.Sport, &ev.HomeTeam, &ev.AwayTeam,
		&ev.StartTime, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, fmt.Errorf("postgres: event %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("postgres: get event %s: %w", id, err)
	}
	return ev, nil
}

// ListUpcoming returns fixtures starting between now and now+horizon,
// soonest first.
func (s *EventStore) ListUpcoming(ctx context.Context, horizon time.Duration, opts domain.ListOpts) ([]domain.Event, error) {
	query := `
		SELECT id, sport, home_team, away_team, start_time, created_at, updated_at
		FROM events
		WHERE start_time > NOW() AND start_time <= NOW() + $1
		ORDER BY start_time ASC`
	args := []any{horizon}
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
		return nil, fmt.Errorf("postgres: list upcoming events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Sport, &ev.HomeTeam, &ev.AwayTeam,
			&ev.StartTime, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list upcoming events rows: %w", err)
	}
	return events, nil
}

var _ domain.EventStore = (*EventStore)(nil)
