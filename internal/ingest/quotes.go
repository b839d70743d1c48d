package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// RawQuoteFetcher retrieves the raw odds board for one sport.
type RawQuoteFetcher interface {
	FetchRawQuotes(ctx context.Context, sport string) ([]RawQuote, error)
}

// QuotePoller fetches and ingests the odds board for each configured sport.
// An optional rate limiter keeps the poller inside the provider's request
// budget across process instances.
type QuotePoller struct {
	fetcher  RawQuoteFetcher
	ingestor *Ingestor
	limiter  domain.RateLimiter
	sports   []string
	logger   *slog.Logger
}

// NewQuotePoller creates a QuotePoller. limiter may be nil.
func NewQuotePoller(fetcher RawQuoteFetcher, ingestor *Ingestor, limiter domain.RateLimiter, sports []string, logger *slog.Logger) *QuotePoller {
	return &QuotePoller{
		fetcher:  fetcher,
		ingestor: ingestor,
		limiter:  limiter,
		sports:   sports,
		logger:   logger.With(slog.String("component", "quote_poller")),
	}
}

// Run executes one poll across all sports. A rate-limited sport is skipped
// for the cycle; any other fetch failure aborts the run.
func (p *QuotePoller) Run(ctx context.Context) error {
	for _, sport := range p.sports {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, "provider:odds"); err != nil {
				return fmt.Errorf("ingest: wait for provider budget: %w", err)
			}
		}
		raws, err := p.fetcher.FetchRawQuotes(ctx, sport)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				p.logger.Warn("provider rate limited, skipping sport", slog.String("sport", sport))
				continue
			}
			return fmt.Errorf("ingest: poll %s: %w", sport, err)
		}
		if _, err := p.ingestor.IngestBatch(ctx, raws); err != nil {
			return err
		}
	}
	return nil
}
