package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// ProviderConfig holds the odds provider API parameters.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider is the REST client for the odds provider. It serves three feeds:
// raw bookmaker quotes, upcoming fixtures, and final results. Quote payloads
// are returned loose and pass through Normalize before storage.
type Provider struct {
	cfg  ProviderConfig
	http *http.Client
}

// NewProvider creates a Provider.
func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Provider{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiEvent is the provider's fixture wire shape.
type apiEvent struct {
	ID        string `json:"id"`
	Sport     string `json:"sport"`
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	StartTime string `json:"start_time"`
}

func (e apiEvent) toDomain() (domain.Event, error) {
	start, err := time.Parse(time.RFC3339, e.StartTime)
	if err != nil {
		return domain.Event{}, fmt.Errorf("ingest: event %s start_time: %w", e.ID, err)
	}
	return domain.Event{
		ID:        e.ID,
		Sport:     e.Sport,
		HomeTeam:  e.HomeTeam,
		AwayTeam:  e.AwayTeam,
		StartTime: start.UTC(),
	}, nil
}

// apiResult is the provider's result wire shape.
type apiResult struct {
	EventID          string `json:"event_id"`
	WinningSelection string `json:"winning_selection"`
	Settled          bool   `json:"settled"`
	SettledAt        string `json:"settled_at"`
}

// FetchRawQuotes retrieves the provider's current odds board for a sport.
func (p *Provider) FetchRawQuotes(ctx context.Context, sport string) ([]RawQuote, error) {
	var out struct {
		Quotes []RawQuote `json:"quotes"`
	}
	q := url.Values{"sport": {sport}}
	if err := p.get(ctx, "/v1/odds", q, &out); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

// FetchUpcoming returns fixtures the provider lists as not yet started.
// Fixtures with unparseable start times are dropped.
func (p *Provider) FetchUpcoming(ctx context.Context) ([]domain.Event, error) {
	var out struct {
		Events []apiEvent `json:"events"`
	}
	if err := p.get(ctx, "/v1/fixtures", nil, &out); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(out.Events))
	for _, e := range out.Events {
		ev, err := e.toDomain()
		if err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchResult returns the final outcome for an event. ErrNotFound means the
// provider has not published a result yet.
func (p *Provider) FetchResult(ctx context.Context, eventID string) (domain.Result, error) {
	var out apiResult
	if err := p.get(ctx, "/v1/results/"+url.PathEscape(eventID), nil, &out); err != nil {
		return domain.Result{}, err
	}

	res := domain.Result{
		EventID:          out.EventID,
		WinningSelection: out.WinningSelection,
		Settled:          out.Settled,
	}
	if out.SettledAt != "" {
		if t, err := time.Parse(time.RFC3339, out.SettledAt); err == nil {
			res.SettledAt = t.UTC()
		}
	}
	return res, nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out any) error {
	u := p.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("ingest: build request: %w", err)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("ingest: %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("ingest: %s: %w", path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("ingest: %s: %w", path, domain.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("ingest: %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ingest: decode %s: %w", path, err)
	}
	return nil
}

var (
	_ domain.FixtureFeed = (*Provider)(nil)
	_ domain.ResultFeed  = (*Provider)(nil)
)
