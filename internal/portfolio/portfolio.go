// Package portfolio owns cash, per-symbol positions, and the append-only
// transaction journal for a single backtest run. It is the central mutator
// the order-execution simulator drives.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/position"
)

// Transaction is an append-only journal entry: (timestamp, symbol, signed
// quantity, price, commission). Never mutated after it is appended.
type Transaction struct {
	Timestamp time.Time
	Symbol    string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Commission decimal.Decimal
}

// Option configures a Portfolio at construction time.
type Option func(*Portfolio)

// WithShortSellingEnabled lifts the default long-only restriction. Off by
// default — see SPEC_FULL.md's resolution of the short-selling open
// question; this is the "internal hook" the source leaves in place.
func WithShortSellingEnabled() Option {
	return func(p *Portfolio) { p.allowShort = true }
}

// Portfolio is owned by exactly one backtest run; no concurrent mutation is
// expected on the hot path, but the read surface (positions/total value) is
// guarded by an RWMutex so a concurrent reporter goroutine can observe state
// safely without racing the run loop.
type Portfolio struct {
	mu             sync.RWMutex
	cash           decimal.Decimal
	initialCapital decimal.Decimal
	positions      map[string]*position.Position
	transactions   []Transaction
	allowShort     bool
}

// New constructs a Portfolio reset to initialCapital.
func New(initialCapital decimal.Decimal, opts ...Option) *Portfolio {
	p := &Portfolio{
		cash:           initialCapital,
		initialCapital: initialCapital,
		positions:      make(map[string]*position.Position),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reset clears positions and the transaction journal and resets cash to
// initialCapital, as required at the top of every BacktestEngine.Run.
func (p *Portfolio) Reset(initialCapital decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = initialCapital
	p.initialCapital = initialCapital
	p.positions = make(map[string]*position.Position)
	p.transactions = nil
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// HasPosition reports whether symbol currently has an open (nonzero)
// position.
func (p *Portfolio) HasPosition(symbol string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	return ok && pos.IsOpen()
}

// GetPosition returns the position for symbol, or nil if none is open.
func (p *Portfolio) GetPosition(symbol string) *position.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}

// Positions returns a snapshot slice of all currently open positions.
func (p *Portfolio) Positions() []*position.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*position.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out
}

// Transactions returns the full transaction journal in append order.
func (p *Portfolio) Transactions() []Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Transaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// LastTransaction returns the most recently appended transaction for symbol,
// walking the journal backwards, and false when symbol has no transaction.
func (p *Portfolio) LastTransaction(symbol string) (Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := len(p.transactions) - 1; i >= 0; i-- {
		if p.transactions[i].Symbol == symbol {
			return p.transactions[i], true
		}
	}
	return Transaction{}, false
}

// TotalValue returns cash plus the mark-to-market value of open positions,
// using mark as the per-symbol pricing function (typically the latest bar's
// close). Symbols with no entry in mark fall back to the position's
// CurrentPrice.
func (p *Portfolio) TotalValue(mark map[string]decimal.Decimal) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := p.cash
	for symbol, pos := range p.positions {
		if !pos.IsOpen() {
			continue
		}
		price, ok := mark[symbol]
		if !ok {
			price = pos.CurrentPrice
		}
		total = total.Add(pos.Quantity.Mul(price))
	}
	return total
}

// UpdatePosition is the central mutator (§4.4). It debits commission
// unconditionally on success, debits dq*price from cash on a buy (failing if
// cash would go negative and this is not a reducing/closing trade), credits
// |dq|*price to cash on a sell, and appends a Transaction. It returns false
// without any side effects on failure (insufficient cash, or an attempt to
// open a short position while short selling is disabled).
func (p *Portfolio) UpdatePosition(symbol string, dq, price, commission decimal.Decimal, ts time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		pos = position.New(symbol)
	}

	resultQty := pos.Quantity.Add(dq)
	isReducingOrClosing := !pos.Quantity.IsZero() && oppositeSign(pos.Quantity, dq)

	if !p.allowShort && resultQty.IsNegative() {
		return false
	}

	cost := dq.Mul(price)
	if dq.IsPositive() {
		totalDebit := cost.Add(commission)
		if p.cash.LessThan(totalDebit) && !isReducingOrClosing {
			return false
		}
		p.cash = p.cash.Sub(totalDebit)
	} else {
		proceeds := dq.Abs().Mul(price)
		p.cash = p.cash.Add(proceeds).Sub(commission)
	}

	pos.Update(dq, price)
	if resultQty.IsZero() {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}

	p.transactions = append(p.transactions, Transaction{
		Timestamp:  ts,
		Symbol:     symbol,
		Quantity:   dq,
		Price:      price,
		Commission: commission,
	})
	return true
}

func oppositeSign(a, b decimal.Decimal) bool {
	return a.Sign() != 0 && b.Sign() != 0 && a.Sign() != b.Sign()
}
