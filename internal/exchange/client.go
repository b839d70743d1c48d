// Package exchange implements the outbound gateway to the betting exchange:
// an HMAC-authenticated REST client with bounded retries and a websocket
// market-data stream.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// ClientConfig holds the REST client parameters.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	Retry     RetryPolicy
}

// Client is the REST gateway to the exchange. Placement is idempotent: each
// logical instruction carries one customer reference across all retry
// attempts, and an ambiguous final attempt is resolved by querying the
// reference before giving up. A returned transport error therefore means
// the instruction is definitively not live.
type Client struct {
	baseURL    string
	auth       HMACAuth
	retryPol   RetryPolicy
	httpClient *http.Client
}

// NewClient creates an exchange Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		auth:     HMACAuth{Key: cfg.APIKey, Secret: cfg.APISecret},
		retryPol: cfg.Retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// PlaceOrder submits one order. Terminal rejections come back as
// *domain.Rejection; transient failures are retried per the policy.
func (c *Client) PlaceOrder(ctx context.Context, marketID, selectionID string, side domain.Side, price, size float64) (domain.PlaceResult, error) {
	req := orderRequest{
		MarketID:    marketID,
		SelectionID: selectionID,
		Side:        string(side),
		Price:       price,
		Size:        size,
		CustomerRef: uuid.New().String(),
	}

	var out orderResponse
	err := retry(ctx, c.retryPol, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, "/v1/orders", req, &out)
	})
	if err != nil {
		// The final attempt may have reached the exchange without a
		// response. Reconcile by customer ref so a live order is never
		// reported as absent.
		if res, found := c.reconcileByRef(ctx, req.CustomerRef); found {
			return res, nil
		}
		return domain.PlaceResult{}, fmt.Errorf("exchange: place order: %w", err)
	}
	return out.toResult(), nil
}

// CancelOrder cancels an order. The result reports any fill that landed
// before the cancel took effect.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (domain.CancelResult, error) {
	var out cancelResponse
	err := retry(ctx, c.retryPol, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodDelete, "/v1/orders/"+url.PathEscape(orderID), nil, &out)
	})
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("exchange: cancel order %s: %w", orderID, err)
	}
	return domain.CancelResult{Cancelled: out.Cancelled, FilledSize: out.FilledSize}, nil
}

// QueryBestPrices returns the current top-of-book for a selection.
func (c *Client) QueryBestPrices(ctx context.Context, marketID, selectionID string) (domain.BestPrices, error) {
	path := fmt.Sprintf("/v1/markets/%s/book?selection=%s",
		url.PathEscape(marketID), url.QueryEscape(selectionID))

	var out bookResponse
	err := retry(ctx, c.retryPol, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, path, nil, &out)
	})
	if err != nil {
		return domain.BestPrices{}, fmt.Errorf("exchange: query best prices %s/%s: %w", marketID, selectionID, err)
	}
	return out.toBest(), nil
}

// OrderStatus returns the current fill state of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (domain.PlaceResult, error) {
	var out orderResponse
	err := retry(ctx, c.retryPol, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &out)
	})
	if err != nil {
		return domain.PlaceResult{}, fmt.Errorf("exchange: order status %s: %w", orderID, err)
	}
	return out.toResult(), nil
}

// reconcileByRef looks an order up by customer reference after an ambiguous
// placement attempt. Found means the instruction did reach the exchange.
func (c *Client) reconcileByRef(ctx context.Context, ref string) (domain.PlaceResult, bool) {
	var out orderResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/orders/ref/"+url.PathEscape(ref), nil, &out)
	if err != nil {
		return domain.PlaceResult{}, false
	}
	return out.toResult(), true
}

// doJSON performs one signed request, decoding a structured rejection body
// into *domain.Rejection, rate limiting into domain.ErrRateLimited, and any
// other non-2xx into *StatusError.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("exchange: marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("exchange: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.Headers(method, path, string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchange: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("exchange: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("exchange: decode response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("exchange: %s %s: %w", method, path, domain.ErrRateLimited)

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var ae apiError
		if json.Unmarshal(respBody, &ae) == nil && ae.Code != "" && terminalCodes[ae.Code] {
			return &domain.Rejection{Code: ae.Code, Reason: ae.Message}
		}
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}

	default:
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
}

// Compile-time interface check.
var _ domain.ExchangeGateway = (*Client)(nil)
