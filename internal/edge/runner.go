package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// CandidateChannel is the pub/sub channel and stream name candidates are
// published on.
const CandidateChannel = "candidates"

// Alerter delivers human-facing notifications for strong candidates.
// Implemented by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunnerConfig holds the detection cycle parameters.
type RunnerConfig struct {
	// Horizon bounds how far ahead of kickoff events are scanned.
	Horizon time.Duration
	// QuoteWindow is how far back quotes are loaded for each market.
	QuoteWindow time.Duration
	// Markets is the list of market names scanned per event.
	Markets []string
	// AlertTier is the minimum tier that triggers a notification. Empty
	// disables alerting.
	AlertTier domain.Tier
}

// Runner executes one detection cycle: load the quote window for every
// upcoming event and market, evaluate edges, persist and publish the
// resulting candidates. It owns Candidate creation exclusively.
type Runner struct {
	events     domain.EventStore
	quotes     domain.QuoteStore
	candidates domain.CandidateStore
	bus        domain.SignalBus
	alerter    Alerter
	detector   *Detector
	cfg        RunnerConfig
	logger     *slog.Logger
}

// NewRunner creates a Runner. bus and alerter may be nil, in which case
// publishing and alerting are skipped.
func NewRunner(
	events domain.EventStore,
	quotes domain.QuoteStore,
	candidates domain.CandidateStore,
	bus domain.SignalBus,
	alerter Alerter,
	detector *Detector,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if cfg.Horizon <= 0 {
		cfg.Horizon = 48 * time.Hour
	}
	if cfg.QuoteWindow <= 0 {
		cfg.QuoteWindow = 10 * time.Minute
	}
	if len(cfg.Markets) == 0 {
		cfg.Markets = []string{"match_odds"}
	}
	return &Runner{
		events:     events,
		quotes:     quotes,
		candidates: candidates,
		bus:        bus,
		alerter:    alerter,
		detector:   detector,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "edge_runner")),
	}
}

// RunCycle performs one full detection pass. Failures for individual
// markets are logged and do not abort the cycle.
func (r *Runner) RunCycle(ctx context.Context) error {
	now := time.Now().UTC()

	events, err := r.events.ListUpcoming(ctx, r.cfg.Horizon, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("edge: list upcoming events: %w", err)
	}

	emitted := 0
	for _, ev := range events {
		for _, market := range r.cfg.Markets {
			n, err := r.evaluateMarket(ctx, ev, market, now)
			if err != nil {
				r.logger.Warn("market evaluation failed",
					slog.String("event_id", ev.ID),
					slog.String("market", market),
					slog.String("error", err.Error()),
				)
				continue
			}
			emitted += n
		}
	}

	r.logger.Info("detection cycle complete",
		slog.Int("events", len(events)),
		slog.Int("candidates", emitted),
	)
	return nil
}

func (r *Runner) evaluateMarket(ctx context.Context, ev domain.Event, market string, now time.Time) (int, error) {
	window, err := r.quotes.ListWindow(ctx, ev.ID, market, now.Add(-r.cfg.QuoteWindow))
	if err != nil {
		return 0, fmt.Errorf("load quote window: %w", err)
	}
	cands := r.detector.Evaluate(window, now)
	if len(cands) == 0 {
		return 0, nil
	}

	if err := r.candidates.InsertBatch(ctx, cands); err != nil {
		return 0, fmt.Errorf("store candidates: %w", err)
	}

	for _, c := range cands {
		r.publish(ctx, c)
		r.alert(ctx, ev, c)
	}
	return len(cands), nil
}

func (r *Runner) publish(ctx context.Context, c domain.Candidate) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("marshal candidate", slog.String("error", err.Error()))
		return
	}
	if err := r.bus.Publish(ctx, CandidateChannel, payload); err != nil {
		r.logger.Warn("publish candidate", slog.String("error", err.Error()))
	}
	if err := r.bus.StreamAppend(ctx, CandidateChannel, payload); err != nil {
		r.logger.Warn("append candidate to stream", slog.String("error", err.Error()))
	}
}

func (r *Runner) alert(ctx context.Context, ev domain.Event, c domain.Candidate) {
	if r.alerter == nil || r.cfg.AlertTier == "" {
		return
	}
	if !tierAtLeast(c.Tier, r.cfg.AlertTier) {
		return
	}
	title := fmt.Sprintf("%s edge: %s", c.Tier, ev.Name())
	msg := fmt.Sprintf("%s / %s @ %s\noffered %.3f vs fair %.3f (edge %.2fpp)",
		c.Market, c.Selection, c.Bookmaker, c.OfferedPrice, c.FairPrice, c.EdgePP)
	if err := r.alerter.Notify(ctx, "candidate_"+string(c.Tier), title, msg); err != nil {
		r.logger.Warn("candidate alert failed", slog.String("error", err.Error()))
	}
}

func tierAtLeast(have, min domain.Tier) bool {
	rank := map[domain.Tier]int{domain.TierLow: 0, domain.TierMedium: 1, domain.TierHigh: 2}
	return rank[have] >= rank[min]
}
