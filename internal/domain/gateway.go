package domain

import (
	"context"
	"time"
)

// OrderStatus is the exchange-reported state of a single order.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// PlaceResult is the exchange response to an order placement.
type PlaceResult struct {
	OrderID     string
	Status      OrderStatus
	FilledPrice float64
	FilledSize  float64
	Message     string
}

// CancelResult is the exchange response to a cancel instruction. FilledSize
// reports any fill that occurred before the cancel took effect; a non-zero
// value means the position is (partially) open despite the cancel.
type CancelResult struct {
	Cancelled  bool
	FilledSize float64
}

// BestPrices is the current top-of-book for one exchange selection.
type BestPrices struct {
	SelectionID string
	BackPrice   float64
	BackSize    float64
	LayPrice    float64
	LaySize     float64
	AsOf        time.Time
}

// ExchangeGateway is the outbound interface to the betting exchange. All
// calls are slow, unreliable network operations: a transport error means
// "outcome unknown, reconcile before acting", never implicit success or
// failure. Terminal rejections are returned as *Rejection.
type ExchangeGateway interface {
	PlaceOrder(ctx context.Context, marketID, selectionID string, side Side, price, size float64) (PlaceResult, error)
	CancelOrder(ctx context.Context, orderID string) (CancelResult, error)
	QueryBestPrices(ctx context.Context, marketID, selectionID string) (BestPrices, error)
	// OrderStatus reconciles the fill state of a previously placed order.
	OrderStatus(ctx context.Context, orderID string) (PlaceResult, error)
}

// FixtureFeed supplies upcoming events from the external discovery provider.
type FixtureFeed interface {
	FetchUpcoming(ctx context.Context) ([]Event, error)
}

// ResultFeed supplies final event outcomes used at settlement.
type ResultFeed interface {
	FetchResult(ctx context.Context, eventID string) (Result, error)
}
