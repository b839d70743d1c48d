package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// RetryPolicy bounds retries of outbound exchange calls. Only transient
// failures (timeouts, rate limits, 5xx responses) are retried; terminal
// rejections are returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is 4 attempts with 250ms exponential backoff capped at
// 5 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// IsTransient reports whether err is worth retrying. Exchange rejections
// are never transient; network timeouts, rate limits, and 5xx status errors
// are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrRejected) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == 429
	}
	return false
}

// retry runs op up to p.MaxAttempts times, sleeping BaseDelay×2ⁿ between
// attempts and honouring ctx. The last error is returned on exhaustion,
// wrapped so callers can still classify it.
func retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("exchange: %d attempts exhausted: %w", p.MaxAttempts, lastErr)
}
