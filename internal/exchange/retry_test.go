package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rejection", &domain.Rejection{Code: "INVALID_ODDS", Reason: "price off tick"}, false},
		{"wrapped rejection", fmt.Errorf("place: %w", &domain.Rejection{Code: "MARKET_CLOSED"}), false},
		{"rate limited", domain.ErrRateLimited, true},
		{"network timeout", timeoutErr{}, true},
		{"server error", &StatusError{Code: 503}, true},
		{"too many requests", &StatusError{Code: 429}, true},
		{"client error", &StatusError{Code: 400}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryBoundedAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := retry(context.Background(), p, func(context.Context) error {
		calls++
		return &StatusError{Code: 502}
	})
	if calls != 3 {
		t.Fatalf("op called %d times, want 3", calls)
	}
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 502 {
		t.Fatalf("exhaustion error should wrap the last failure, got %v", err)
	}
}

func TestRetryStopsOnTerminalRejection(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := retry(context.Background(), p, func(context.Context) error {
		calls++
		return &domain.Rejection{Code: "INSUFFICIENT_FUNDS", Reason: "balance too low"}
	})
	if calls != 1 {
		t.Fatalf("terminal rejection retried: op called %d times", calls)
	}
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := retry(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.ErrRateLimited
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times, want 3", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry(ctx, p, func(context.Context) error {
		return domain.ErrRateLimited
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHMACAuthDeterministicHeaders(t *testing.T) {
	auth := &HMACAuth{Key: "key-1234", Secret: "topsecret"}

	h1 := auth.HeadersAt("POST", "/v1/orders", `{"size":10}`, 1700000000)
	h2 := auth.HeadersAt("POST", "/v1/orders", `{"size":10}`, 1700000000)
	if h1["X-Signature"] == "" {
		t.Fatal("missing signature header")
	}
	if h1["X-Signature"] != h2["X-Signature"] {
		t.Fatal("identical requests must sign identically")
	}
	if h1["X-API-Key"] != "key-1234" || h1["X-Timestamp"] != "1700000000" {
		t.Fatalf("unexpected headers: %v", h1)
	}

	h3 := auth.HeadersAt("POST", "/v1/orders", `{"size":11}`, 1700000000)
	if h3["X-Signature"] == h1["X-Signature"] {
		t.Fatal("different bodies must not share a signature")
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "key-1234", Secret: "topsecret"}
	s := auth.String()
	if s != "HMACAuth{key=key-****, secret=tops****}" {
		t.Fatalf("unexpected redaction: %s", s)
	}
}
