package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// RawQuote is one loose provider odds record. Everything arrives as strings;
// Normalize is the single point where loose provider data becomes a strict
// domain.Quote.
type RawQuote struct {
	EventID    string  `json:"event_id"`
	Market     string  `json:"market"`
	Selection  string  `json:"selection"`
	Bookmaker  string  `json:"bookmaker"`
	Price      string  `json:"price"`
	Line       *string `json:"line,omitempty"`
	ObservedAt string  `json:"observed_at"`
}

// Normalize validates and converts a raw provider record. Decimal prices
// must exceed 1.0; observed_at must be RFC 3339 and not in the future
// relative to now (a small clock-skew allowance applies).
func Normalize(raw RawQuote, now time.Time) (domain.Quote, error) {
	eventID := strings.TrimSpace(raw.EventID)
	market := strings.TrimSpace(raw.Market)
	selection := strings.TrimSpace(raw.Selection)
	bookmaker := strings.TrimSpace(raw.Bookmaker)
	if eventID == "" || market == "" || selection == "" || bookmaker == "" {
		return domain.Quote{}, fmt.Errorf("ingest: missing identity fields: %w", domain.ErrInvalidParams)
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(raw.Price), 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("ingest: unparseable price %q: %w", raw.Price, domain.ErrInvalidParams)
	}
	if price <= 1.0 {
		return domain.Quote{}, fmt.Errorf("ingest: price %v out of range: %w", price, domain.ErrInvalidParams)
	}

	observedAt, err := time.Parse(time.RFC3339, raw.ObservedAt)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("ingest: unparseable observed_at %q: %w", raw.ObservedAt, domain.ErrInvalidParams)
	}
	observedAt = observedAt.UTC()
	if observedAt.After(now.Add(time.Minute)) {
		return domain.Quote{}, fmt.Errorf("ingest: observed_at %s in the future: %w", observedAt.Format(time.RFC3339), domain.ErrInvalidParams)
	}

	q := domain.Quote{
		EventID:    eventID,
		Market:     market,
		Selection:  selection,
		Bookmaker:  bookmaker,
		Price:      price,
		ObservedAt: observedAt,
	}
	if raw.Line != nil {
		line, err := strconv.ParseFloat(strings.TrimSpace(*raw.Line), 64)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("ingest: unparseable line %q: %w", *raw.Line, domain.ErrInvalidParams)
		}
		q.Line = &line
	}
	return q, nil
}

// Ingestor normalizes raw provider records and persists the valid ones.
// Malformed records are quarantined to the audit log rather than dropped
// silently, so provider format drift is visible.
type Ingestor struct {
	quotes domain.QuoteStore
	audit  domain.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewIngestor creates an Ingestor.
func NewIngestor(quotes domain.QuoteStore, audit domain.AuditStore, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		quotes: quotes,
		audit:  audit,
		logger: logger.With(slog.String("component", "quote_ingestor")),
		now:    time.Now,
	}
}

// IngestBatch normalizes and stores one provider batch. It returns how many
// quotes were newly stored; re-observed quotes are skipped by the store's
// natural-key constraint and do not count.
func (i *Ingestor) IngestBatch(ctx context.Context, raws []RawQuote) (int64, error) {
	now := i.now().UTC()

	valid := make([]domain.Quote, 0, len(raws))
	quarantined := 0
	for _, raw := range raws {
		q, err := Normalize(raw, now)
		if err != nil {
			quarantined++
			i.quarantine(ctx, raw, err)
			continue
		}
		valid = append(valid, q)
	}

	var inserted int64
	if len(valid) > 0 {
		var err error
		inserted, err = i.quotes.InsertBatch(ctx, valid)
		if err != nil {
			return 0, fmt.Errorf("ingest: store quotes: %w", err)
		}
	}

	i.logger.Info("quote batch ingested",
		slog.Int("received", len(raws)),
		slog.Int64("stored", inserted),
		slog.Int("duplicates", len(valid)-int(inserted)),
		slog.Int("quarantined", quarantined),
	)
	return inserted, nil
}

func (i *Ingestor) quarantine(ctx context.Context, raw RawQuote, cause error) {
	detail := map[string]any{
		"event_id":  raw.EventID,
		"bookmaker": raw.Bookmaker,
		"selection": raw.Selection,
		"price":     raw.Price,
		"reason":    cause.Error(),
	}
	if err := i.audit.Log(ctx, "quote_quarantined", detail); err != nil {
		i.logger.Warn("quarantine audit write failed", slog.String("error", err.Error()))
	}
	i.logger.Debug("quote quarantined",
		slog.String("bookmaker", raw.Bookmaker),
		slog.String("reason", cause.Error()),
	)
}
