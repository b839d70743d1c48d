package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// CandidateService is the read model over detected candidates.
type CandidateService struct {
	candidates domain.CandidateStore
	events     domain.EventStore
	logger     *slog.Logger
}

// NewCandidateService creates a CandidateService.
func NewCandidateService(candidates domain.CandidateStore, events domain.EventStore, logger *slog.Logger) *CandidateService {
	return &CandidateService{
		candidates: candidates,
		events:     events,
		logger:     logger,
	}
}

// RankedCandidate pairs a candidate with its fixture for display.
type RankedCandidate struct {
	Candidate domain.Candidate
	Event     domain.Event
}

// List returns candidates matching the filter.
func (s *CandidateService) List(ctx context.Context, filter domain.CandidateFilter) ([]domain.Candidate, error) {
	cands, err := s.candidates.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("candidate_service: list: %w", err)
	}
	return cands, nil
}

// Ranked returns the current candidates within the freshness window ranked
// by edge strength, each joined with its fixture. Candidates whose event can
// no longer be loaded are skipped.
func (s *CandidateService) Ranked(ctx context.Context, freshness time.Duration, limit int) ([]RankedCandidate, error) {
	since := time.Now().UTC().Add(-freshness)
	cands, err := s.candidates.List(ctx, domain.CandidateFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("candidate_service: ranked list: %w", err)
	}

	// Keep only the latest candidate per signal key before ranking, so a
	// key re-emitted across several cycles does not take multiple slots.
	latest := make(map[string]domain.Candidate, len(cands))
	for _, c := range cands {
		key := c.EventID + "|" + c.Market + "|" + c.Selection + "|" + c.Bookmaker
		if prev, ok := latest[key]; !ok || c.CreatedAt.After(prev.CreatedAt) {
			latest[key] = c
		}
	}

	deduped := make([]domain.Candidate, 0, len(latest))
	for _, c := range latest {
		deduped = append(deduped, c)
	}
	sort.Slice(deduped, func(i, j int) bool {
		return deduped[i].EdgePP > deduped[j].EdgePP
	})
	if limit > 0 && len(deduped) > limit {
		deduped = deduped[:limit]
	}

	ranked := make([]RankedCandidate, 0, len(deduped))
	for _, c := range deduped {
		ev, err := s.events.GetByID(ctx, c.EventID)
		if err != nil {
			s.logger.WarnContext(ctx, "candidate_service: event lookup failed",
				slog.String("event_id", c.EventID),
				slog.String("error", err.Error()),
			)
			continue
		}
		ranked = append(ranked, RankedCandidate{Candidate: c, Event: ev})
	}
	return ranked, nil
}
