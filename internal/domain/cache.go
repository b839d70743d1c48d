package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest exchange top-of-book per
// selection, primed by the market-data stream and read by the monitor cycle.
type PriceCache interface {
	SetBest(ctx context.Context, best BestPrices) error
	GetBest(ctx context.Context, selectionID string) (BestPrices, error)
}

// LockManager provides distributed locking. Cycle and per-trade locks use it
// so multiple process instances can run the poll loops safely.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter enforces request budgets against external providers across
// process instances.
type RateLimiter interface {
	// Allow counts and admits a request if under limit within the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is admitted or ctx ends.
	Wait(ctx context.Context, key string) error
}

// StreamMessage is one durable message read from a signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries candidate signals to out-of-process consumers (alerting,
// dashboards). Publish is ephemeral pub/sub; the stream methods are durable
// and ordered.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
