package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
)

// MACrossover is a long-only trend-following strategy: it buys a symbol's
// full allocation on a golden cross (fast SMA crossing above slow SMA) and
// flattens on a death cross (fast SMA crossing back below). Adapted from a
// multi-timeframe golden/death-cross signal generator down to the two-SMA
// crossover core the spec's single-symbol event loop can drive.
type MACrossover struct {
	symbol  string
	fast    int
	slow    int
	history map[string][]decimal.Decimal

	wasAbove bool
	primed   bool
}

// NewMACrossover builds a crossover strategy for symbol using fast/slow SMA
// window lengths (e.g. 20/50).
func NewMACrossover(symbol string, fast, slow int) *MACrossover {
	return &MACrossover{symbol: symbol, fast: fast, slow: slow}
}

func (s *MACrossover) Name() string { return "ma_crossover" }

func (s *MACrossover) RequiredSymbols() []string { return []string{s.symbol} }

// Initialize resets the close history. data covers the whole run range, so
// closes are collected bar by bar in OnBar instead, keeping each SMA limited
// to closes up to the current bar.
func (s *MACrossover) Initialize(data map[string]*bar.TimeSeries) error {
	s.history = make(map[string][]decimal.Decimal)
	return nil
}

func (s *MACrossover) OnBar(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) error {
	b, ok := currentBars[s.symbol]
	if !ok {
		return nil
	}
	s.history[s.symbol] = append(s.history[s.symbol], b.Close)
	return nil
}

func (s *MACrossover) GenerateOrders(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) ([]*order.Order, error) {
	b, ok := currentBars[s.symbol]
	if !ok {
		return nil, nil
	}
	closes := s.history[s.symbol]
	fastAvg, okFast := sma(closes, s.fast)
	slowAvg, okSlow := sma(closes, s.slow)
	if !okFast || !okSlow {
		return nil, nil
	}

	isAbove := fastAvg.GreaterThan(slowAvg)
	defer func() { s.wasAbove, s.primed = isAbove, true }()

	if !s.primed {
		return nil, nil
	}

	pos := p.GetPosition(s.symbol)
	hasOpenLong := pos != nil && pos.IsOpen() && pos.Long()

	switch {
	case isAbove && !s.wasAbove && !hasOpenLong:
		qty := s.sizeFor(p, b.Close)
		if !qty.IsPositive() {
			return nil, nil
		}
		o, err := order.New(s.symbol, order.Market, qty, t, decimal.Zero)
		if err != nil {
			return nil, nil
		}
		return []*order.Order{o}, nil
	case !isAbove && s.wasAbove && hasOpenLong:
		o, err := order.NewMarketExit(s.symbol, pos.Quantity.Neg(), t)
		if err != nil {
			return nil, nil
		}
		return []*order.Order{o}, nil
	default:
		return nil, nil
	}
}

func (s *MACrossover) sizeFor(p *portfolio.Portfolio, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return p.Cash().Div(price).Truncate(0)
}

func (s *MACrossover) Parameters() map[string]float64 {
	return map[string]float64{"fast": float64(s.fast), "slow": float64(s.slow)}
}

func (s *MACrossover) SetParameter(name string, value float64) {
	switch name {
	case "fast":
		s.fast = int(value)
	case "slow":
		s.slow = int(value)
	}
}
