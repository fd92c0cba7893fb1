// Package order models a simulated broker order: its type, sizing, optional
// stop-loss/take-profit attachments, and the one-way create -> execute
// lifecycle transition.
package order

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported order types.
type Type string

const (
	Market    Type = "MARKET"
	Limit     Type = "LIMIT"
	Stop      Type = "STOP"
	StopLimit Type = "STOP_LIMIT"
)

var (
	// ErrZeroQuantity is returned when an order is constructed with qty == 0.
	ErrZeroQuantity = errors.New("order: quantity must not be zero")
	// ErrNegativeTrigger is returned when a limit/stop trigger price is <= 0.
	ErrNegativeTrigger = errors.New("order: trigger price must be positive")
	// ErrAlreadyExecuted is returned by Execute on an order that has already
	// been filled; an order executes exactly once.
	ErrAlreadyExecuted = errors.New("order: already executed")
)

var nextID atomic.Uint64

// NextID issues a process-unique, monotonically increasing order ID. It is
// safe for concurrent use; the evaluator's worker pool calls it from many
// goroutines at once when each task builds its own orders.
func NextID() uint64 {
	return nextID.Add(1)
}

// Order is a mutable order object with lifecycle flags and optional SL/TP.
// Quantity sign determines side: positive is a buy, negative is a sell.
// Execution fields are zero-valued until Execute is called, after which they
// are frozen — Execute may never be called again.
type Order struct {
	ID           uint64
	Symbol       string
	Type         Type
	Quantity     decimal.Decimal
	CreationTime time.Time

	// TriggerPrice is the limit or stop price; unused for MARKET orders.
	TriggerPrice decimal.Decimal

	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal

	executed      bool
	executionTime time.Time
	executionPx   decimal.Decimal
}

// New constructs an order, recording its creation time. qty != 0 is
// required; a non-MARKET order requires a positive TriggerPrice.
func New(symbol string, typ Type, qty decimal.Decimal, creationTime time.Time, trigger decimal.Decimal) (*Order, error) {
	if qty.IsZero() {
		return nil, ErrZeroQuantity
	}
	if typ != Market && !trigger.IsPositive() {
		return nil, fmt.Errorf("%w: %s order requires trigger > 0, got %s", ErrNegativeTrigger, typ, trigger)
	}
	return &Order{
		ID:           NextID(),
		Symbol:       symbol,
		Type:         typ,
		Quantity:     qty,
		CreationTime: creationTime,
		TriggerPrice: trigger,
	}, nil
}

// WithStopLoss attaches a stop-loss price; has_stop_loss is true whenever
// this is positive.
func (o *Order) WithStopLoss(price decimal.Decimal) *Order {
	o.StopLossPrice = price
	return o
}

// WithTakeProfit attaches a take-profit price.
func (o *Order) WithTakeProfit(price decimal.Decimal) *Order {
	o.TakeProfitPrice = price
	return o
}

// HasStopLoss reports whether a positive stop-loss price is attached.
func (o *Order) HasStopLoss() bool { return o.StopLossPrice.IsPositive() }

// HasTakeProfit reports whether a positive take-profit price is attached.
func (o *Order) HasTakeProfit() bool { return o.TakeProfitPrice.IsPositive() }

// IsBuy reports whether the order's quantity is positive.
func (o *Order) IsBuy() bool { return o.Quantity.IsPositive() }

// Executed reports whether Execute has already been called.
func (o *Order) Executed() bool { return o.executed }

// ExecutionTime returns the fill timestamp; zero value until executed.
func (o *Order) ExecutionTime() time.Time { return o.executionTime }

// ExecutionPrice returns the fill price; zero value until executed.
func (o *Order) ExecutionPrice() decimal.Decimal { return o.executionPx }

// Execute marks the order filled at ts/price. It may be called exactly once;
// a second call is a programming error (fatal per the error taxonomy) and
// returns ErrAlreadyExecuted without mutating anything.
func (o *Order) Execute(ts time.Time, price decimal.Decimal) error {
	if o.executed {
		return fmt.Errorf("order %d: %w", o.ID, ErrAlreadyExecuted)
	}
	o.executed = true
	o.executionTime = ts
	o.executionPx = price
	return nil
}

// NewMarketExit synthesizes a MARKET order for the full opposite-sign
// quantity of an open position, as used by the SL/TP monitor (BacktestEngine
// §4.7) to flatten a position when a stop or target triggers intra-bar.
func NewMarketExit(symbol string, qty decimal.Decimal, creationTime time.Time) (*Order, error) {
	return New(symbol, Market, qty, creationTime, decimal.Zero)
}
