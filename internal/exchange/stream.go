package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// maxStreamReconnectDelay caps the exponential reconnect backoff.
const maxStreamReconnectDelay = 30 * time.Second

// StreamConfig holds the websocket market-data stream parameters.
type StreamConfig struct {
	// URL is the exchange stream endpoint.
	URL string
	// Selections are the exchange selection IDs to subscribe to. Empty
	// subscribes to all markets the account can see.
	Selections []string
}

// streamMessage is the wire format of one stream frame.
type streamMessage struct {
	Type        string  `json:"type"` // "book", "heartbeat"
	SelectionID string  `json:"selection_id"`
	BackPrice   float64 `json:"back_price"`
	BackSize    float64 `json:"back_size"`
	LayPrice    float64 `json:"lay_price"`
	LaySize     float64 `json:"lay_size"`
	Timestamp   int64   `json:"timestamp"`
}

// MarketStream maintains a websocket subscription to the exchange's
// top-of-book feed and primes the price cache with every update, keeping
// the monitor cycle off the REST API for price reads. Disconnects are
// retried with exponential backoff until the context ends.
type MarketStream struct {
	cfg    StreamConfig
	prices domain.PriceCache
	logger *slog.Logger
}

// NewMarketStream creates a MarketStream that feeds prices.
func NewMarketStream(cfg StreamConfig, prices domain.PriceCache, logger *slog.Logger) *MarketStream {
	return &MarketStream{
		cfg:    cfg,
		prices: prices,
		logger: logger.With(slog.String("component", "market_stream")),
	}
}

// Run connects and consumes the stream until ctx is cancelled.
func (s *MarketStream) Run(ctx context.Context) error {
	delay := time.Second
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxStreamReconnectDelay {
			delay = maxStreamReconnectDelay
		}
	}
}

func (s *MarketStream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("exchange: dial stream: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "channel": "book", "selections": s.cfg.Selections}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("exchange: subscribe: %w", err)
	}
	s.logger.Info("stream connected", slog.Int("selections", len(s.cfg.Selections)))

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("exchange: read stream: %w", err)
		}

		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug("unparseable stream frame", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != "book" || msg.SelectionID == "" {
			continue
		}

		best := domain.BestPrices{
			SelectionID: msg.SelectionID,
			BackPrice:   msg.BackPrice,
			BackSize:    msg.BackSize,
			LayPrice:    msg.LayPrice,
			LaySize:     msg.LaySize,
			AsOf:        time.UnixMilli(msg.Timestamp).UTC(),
		}
		if err := s.prices.SetBest(ctx, best); err != nil {
			s.logger.Warn("price cache update failed",
				slog.String("selection_id", msg.SelectionID),
				slog.String("error", err.Error()),
			)
		}
	}
}
