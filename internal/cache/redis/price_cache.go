package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// bookTTL expires stale books so the monitor falls back to querying the
// exchange directly instead of trusting a dead stream.
const bookTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. Each
// selection's top of book is stored at key "book:{selectionID}" with the
// back/lay price and size fields and a Unix-nanosecond timestamp.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func bookKey(selectionID string) string {
	return "book:" + selectionID
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetBest stores the latest top of book for a selection.
func (pc *PriceCache) SetBest(ctx context.Context, best domain.BestPrices) error {
	key := bookKey(best.SelectionID)
	fields := map[string]interface{}{
		"back_price": formatFloat(best.BackPrice),
		"back_size":  formatFloat(best.BackSize),
		"lay_price":  formatFloat(best.LayPrice),
		"lay_size":   formatFloat(best.LaySize),
		"ts":         strconv.FormatInt(best.AsOf.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, bookTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", best.SelectionID, err)
	}
	return nil
}

// GetBest retrieves the latest top of book for a selection. It returns
// domain.ErrNotFound when no book has been cached.
func (pc *PriceCache) GetBest(ctx context.Context, selectionID string) (domain.BestPrices, error) {
	vals, err := pc.rdb.HGetAll(ctx, bookKey(selectionID)).Result()
	if err != nil {
		return domain.BestPrices{}, fmt.Errorf("redis: get book %s: %w", selectionID, err)
	}
	if len(vals) == 0 {
		return domain.BestPrices{}, domain.ErrNotFound
	}

	best := domain.BestPrices{SelectionID: selectionID}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"back_price", &best.BackPrice},
		{"back_size", &best.BackSize},
		{"lay_price", &best.LayPrice},
		{"lay_size", &best.LaySize},
	}
	for _, f := range fields {
		raw, ok := vals[f.name]
		if !ok {
			return domain.BestPrices{}, domain.ErrNotFound
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.BestPrices{}, fmt.Errorf("redis: parse %s for %s: %w", f.name, selectionID, err)
		}
		*f.dst = v
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.BestPrices{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.BestPrices{}, fmt.Errorf("redis: parse ts for %s: %w", selectionID, err)
	}
	best.AsOf = time.Unix(0, tsNano).UTC()

	return best, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
