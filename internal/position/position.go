// Package position models a per-symbol holding: its signed quantity,
// average cost, and the state-machine transitions that update both as fills
// arrive (see Design Note "Position.update branching" — expressed here as
// Update's four-case switch rather than the source's ad hoc branching).
package position

import (
	"github.com/shopspring/decimal"

	"marketsim/internal/order"
)

// Position is a per-symbol holding. avg_price is meaningful only while
// |Quantity| > 0; it is recomputed on a same-side add, preserved on a
// partial reduce, and reset to the fill price on a close-or-reverse.
type Position struct {
	Symbol       string
	Quantity     decimal.Decimal
	AvgPrice     decimal.Decimal
	CurrentPrice decimal.Decimal

	// OriginatingOrder is the order whose fill first opened this position
	// (at its current open leg). The SL/TP monitor and Trade reconstruction
	// both key off this rather than walking the transaction journal — see
	// the "Trade reconstruction by journal walk" design note.
	OriginatingOrder *order.Order
}

// New returns an empty (flat) position for symbol.
func New(symbol string) *Position {
	return &Position{Symbol: symbol}
}

// IsOpen reports whether the position currently holds a nonzero quantity.
func (p *Position) IsOpen() bool { return !p.Quantity.IsZero() }

// Long reports whether the position is net long.
func (p *Position) Long() bool { return p.Quantity.IsPositive() }

// Short reports whether the position is net short.
func (p *Position) Short() bool { return p.Quantity.IsNegative() }

// UnrealizedPnL returns (current_price - avg_price) * qty.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AvgPrice).Mul(p.Quantity)
}

// Case enumerates the four outcomes of Update, per spec §4.3.
type Case int

const (
	// NoOp is Δqty == 0.
	NoOp Case = iota
	// ScaleIn is a same-sign (or opening) add; avg_price is re-averaged.
	ScaleIn
	// Reduce is an opposite-sign partial close; avg_price is unchanged.
	Reduce
	// CloseOrReverse is an opposite-sign fill with |Δqty| >= |qty|;
	// avg_price resets to the fill price.
	CloseOrReverse
)

// Update applies a fill of signed quantity dq at fillPrice and returns which
// of the four cases fired. current_price is updated to fillPrice on every
// non-NoOp case.
func (p *Position) Update(dq, fillPrice decimal.Decimal) Case {
	if dq.IsZero() {
		return NoOp
	}

	switch {
	case p.Quantity.IsZero() || sameSign(p.Quantity, dq):
		p.scaleIn(dq, fillPrice)
		p.CurrentPrice = fillPrice
		return ScaleIn

	case dq.Abs().LessThan(p.Quantity.Abs()):
		p.Quantity = p.Quantity.Add(dq)
		p.CurrentPrice = fillPrice
		return Reduce

	default:
		p.AvgPrice = fillPrice
		p.Quantity = p.Quantity.Add(dq)
		p.CurrentPrice = fillPrice
		return CloseOrReverse
	}
}

func (p *Position) scaleIn(dq, fillPrice decimal.Decimal) {
	absQty := p.Quantity.Abs()
	absDQ := dq.Abs()
	total := absQty.Add(absDQ)
	p.AvgPrice = absQty.Mul(p.AvgPrice).Add(absDQ.Mul(fillPrice)).Div(total)
	p.Quantity = p.Quantity.Add(dq)
}

func sameSign(a, b decimal.Decimal) bool {
	return a.Sign() == b.Sign()
}
