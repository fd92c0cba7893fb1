// Package execution simulates filling an Order against a Bar and mutating a
// Portfolio accordingly, emitting a Trade whenever the fill closes (or
// reverses through) a position.
package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
	"marketsim/internal/trade"
)

// Simulator fills orders against bars at a fixed slippage and commission
// rate. Defaults match §6.4: commission 0.1%, slippage 0.1%.
type Simulator struct {
	SlippageRate   decimal.Decimal
	CommissionRate decimal.Decimal
}

// DefaultCommissionRate and DefaultSlippageRate are the §6.4 defaults.
var (
	DefaultCommissionRate = decimal.NewFromFloat(0.001)
	DefaultSlippageRate   = decimal.NewFromFloat(0.001)
)

// New returns a Simulator configured with the §6.4 defaults.
func New() *Simulator {
	return &Simulator{SlippageRate: DefaultSlippageRate, CommissionRate: DefaultCommissionRate}
}

// Fill attempts to execute o against b, mutating port on success. It returns
// (nil, nil) whenever the order simply does not fill this bar or the
// portfolio rejects it (insufficient cash, or a disallowed short) — these
// are execution misses per §7, not Go errors. A non-nil Trade is returned
// only when the fill closes (fully or via reversal) a position.
func (s *Simulator) Fill(o *order.Order, b bar.Bar, port *portfolio.Portfolio) (*trade.Trade, error) {
	basePrice, ok := fillCondition(o, b)
	if !ok {
		return nil, nil
	}
	execPrice := applySlippage(basePrice, s.SlippageRate, o.IsBuy())
	commission := execPrice.Mul(o.Quantity.Abs()).Mul(s.CommissionRate)

	prev := port.GetPosition(o.Symbol)
	var prevQty, prevAvgPrice decimal.Decimal
	var prevOriginator *order.Order
	prevEntryTime := b.Timestamp
	if prev != nil {
		prevQty = prev.Quantity
		prevAvgPrice = prev.AvgPrice
		prevOriginator = prev.OriginatingOrder
		if prevOriginator != nil {
			prevEntryTime = prevOriginator.ExecutionTime()
		}
	}
	entryCommission := openLegCommission(port, o.Symbol, prevQty)

	if !port.UpdatePosition(o.Symbol, o.Quantity, execPrice, commission, b.Timestamp) {
		return nil, nil
	}
	if err := o.Execute(b.Timestamp, execPrice); err != nil {
		return nil, err
	}

	closesPriorLeg := !prevQty.IsZero() && oppositeSign(prevQty, o.Quantity) && o.Quantity.Abs().GreaterThanOrEqual(prevQty.Abs())
	if closesPriorLeg {
		t := buildTrade(o.Symbol, prevEntryTime, prevAvgPrice, prevQty, b.Timestamp, execPrice, entryCommission.Add(commission), port)
		if resultQty := prevQty.Add(o.Quantity); !resultQty.IsZero() {
			// Reversal: the remainder opened a fresh leg originated by this order.
			if newPos := port.GetPosition(o.Symbol); newPos != nil && newPos.OriginatingOrder == nil {
				newPos.OriginatingOrder = o
			}
		}
		return t, nil
	}

	if prevQty.IsZero() {
		if newPos := port.GetPosition(o.Symbol); newPos != nil && newPos.OriginatingOrder == nil {
			newPos.OriginatingOrder = o
		}
	}
	return nil, nil
}

// openLegCommission sums the commission of the journal entries that built
// the open leg of symbol (net quantity openQty), walking the journal
// backwards. A reversing fill is not counted: its commission belongs to the
// trade it closed.
func openLegCommission(port *portfolio.Portfolio, symbol string, openQty decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	txs := port.Transactions()
	for i, net := len(txs)-1, decimal.Zero; i >= 0 && !net.Equal(openQty); i-- {
		if txs[i].Symbol != symbol {
			continue
		}
		if net = net.Add(txs[i].Quantity); oppositeSign(openQty.Sub(net), openQty) {
			break
		}
		total = total.Add(txs[i].Commission)
	}
	return total
}

func buildTrade(symbol string, entryTime time.Time, entryPrice, entryQty decimal.Decimal, exitTime time.Time, exitPrice, commission decimal.Decimal, port *portfolio.Portfolio) *trade.Trade {
	isLong := entryQty.IsPositive()
	absEntryQty := entryQty.Abs()

	var profit decimal.Decimal
	if isLong {
		profit = exitPrice.Sub(entryPrice).Mul(absEntryQty).Sub(commission)
	} else {
		profit = entryPrice.Sub(exitPrice).Mul(absEntryQty).Sub(commission)
	}

	denom := entryPrice.Mul(absEntryQty)
	var profitPct decimal.Decimal
	if denom.IsPositive() {
		profitPct = profit.Div(denom).Mul(decimal.NewFromInt(100))
	}

	return &trade.Trade{
		Symbol:            symbol,
		EntryTime:         entryTime,
		EntryPrice:        entryPrice,
		EntryQty:          entryQty,
		ExitTime:          exitTime,
		ExitPrice:         exitPrice,
		ExitQty:           entryQty.Neg(),
		CommissionTotal:   commission,
		Profit:            profit,
		ProfitPct:         profitPct,
		IsLong:            isLong,
		CapitalAfterTrade: port.TotalValue(map[string]decimal.Decimal{symbol: exitPrice}),
	}
}

// fillCondition returns the pre-slippage base price and whether o fills
// against b, per the fill-price algorithm table in §4.5.
func fillCondition(o *order.Order, b bar.Bar) (decimal.Decimal, bool) {
	isBuy := o.IsBuy()
	switch o.Type {
	case order.Market:
		return b.Open, true
	case order.Limit:
		if isBuy {
			return o.TriggerPrice, b.Low.LessThanOrEqual(o.TriggerPrice)
		}
		return o.TriggerPrice, b.High.GreaterThanOrEqual(o.TriggerPrice)
	case order.Stop:
		if isBuy {
			return o.TriggerPrice, b.High.GreaterThanOrEqual(o.TriggerPrice)
		}
		return o.TriggerPrice, b.Low.LessThanOrEqual(o.TriggerPrice)
	case order.StopLimit:
		ok := b.High.GreaterThanOrEqual(o.TriggerPrice) && b.Low.LessThanOrEqual(o.TriggerPrice)
		return o.TriggerPrice, ok
	default:
		return decimal.Zero, false
	}
}

func applySlippage(base, slippage decimal.Decimal, isBuy bool) decimal.Decimal {
	if isBuy {
		return base.Mul(decimal.NewFromInt(1).Add(slippage))
	}
	return base.Mul(decimal.NewFromInt(1).Sub(slippage))
}

func oppositeSign(a, b decimal.Decimal) bool {
	return a.Sign() != 0 && b.Sign() != 0 && a.Sign() != b.Sign()
}
