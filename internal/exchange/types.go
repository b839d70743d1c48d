package exchange

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/edgebot/internal/domain"
)

// StatusError is a non-2xx HTTP response from the exchange that did not
// carry a structured rejection body.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("exchange: unexpected status %d: %s", e.Code, e.Body)
}

// orderRequest is the wire format for order placement.
type orderRequest struct {
	MarketID    string  `json:"market_id"`
	SelectionID string  `json:"selection_id"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
	// CustomerRef makes placement idempotent: the exchange treats repeated
	// requests with the same ref as one instruction.
	CustomerRef string `json:"customer_ref"`
}

// orderResponse is the wire format of a placement or status reply.
type orderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	FilledPrice float64 `json:"filled_price"`
	FilledSize  float64 `json:"filled_size"`
	Message     string  `json:"message"`
	ErrorCode   string  `json:"error_code"`
}

func (r orderResponse) toResult() domain.PlaceResult {
	return domain.PlaceResult{
		OrderID:     r.OrderID,
		Status:      domain.OrderStatus(r.Status),
		FilledPrice: r.FilledPrice,
		FilledSize:  r.FilledSize,
		Message:     r.Message,
	}
}

// cancelResponse is the wire format of a cancel reply.
type cancelResponse struct {
	Cancelled  bool    `json:"cancelled"`
	FilledSize float64 `json:"filled_size"`
	ErrorCode  string  `json:"error_code"`
	Message    string  `json:"message"`
}

// bookResponse is the wire format of a top-of-book reply.
type bookResponse struct {
	SelectionID string  `json:"selection_id"`
	BackPrice   float64 `json:"back_price"`
	BackSize    float64 `json:"back_size"`
	LayPrice    float64 `json:"lay_price"`
	LaySize     float64 `json:"lay_size"`
	Timestamp   int64   `json:"timestamp"` // Unix milliseconds
}

func (r bookResponse) toBest() domain.BestPrices {
	return domain.BestPrices{
		SelectionID: r.SelectionID,
		BackPrice:   r.BackPrice,
		BackSize:    r.BackSize,
		LayPrice:    r.LayPrice,
		LaySize:     r.LaySize,
		AsOf:        time.UnixMilli(r.Timestamp).UTC(),
	}
}

// apiError is the structured error body the exchange returns for business
// rejections.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// terminalCodes are rejection codes that must never be retried.
var terminalCodes = map[string]bool{
	"INVALID_ODDS":       true,
	"INVALID_SIZE":       true,
	"INSUFFICIENT_FUNDS": true,
	"MARKET_CLOSED":      true,
	"SELECTION_REMOVED":  true,
	"DUPLICATE_REF":      false, // idempotent replay, resolved via status query
}
