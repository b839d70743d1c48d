package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// FixtureSyncer pulls upcoming fixtures from the discovery feed and upserts
// them so later quote batches can attach to known events.
type FixtureSyncer struct {
	feed   domain.FixtureFeed
	events domain.EventStore
	logger *slog.Logger
}

// NewFixtureSyncer creates a FixtureSyncer.
func NewFixtureSyncer(feed domain.FixtureFeed, events domain.EventStore, logger *slog.Logger) *FixtureSyncer {
	return &FixtureSyncer{
		feed:   feed,
		events: events,
		logger: logger.With(slog.String("component", "fixture_syncer")),
	}
}

// Run executes a single fixture sync.
func (s *FixtureSyncer) Run(ctx context.Context) error {
	events, err := s.feed.FetchUpcoming(ctx)
	if err != nil {
		return fmt.Errorf("ingest: fetch fixtures: %w", err)
	}
	if len(events) == 0 {
		s.logger.Debug("no upcoming fixtures")
		return nil
	}

	if err := s.events.UpsertBatch(ctx, events); err != nil {
		return fmt.Errorf("ingest: upsert fixtures: %w", err)
	}
	s.logger.Info("fixtures synced", slog.Int("count", len(events)))
	return nil
}
