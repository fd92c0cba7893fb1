package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
	"marketsim/internal/risk"
)

// RSIMomentum is a long-only mean-reversion strategy: it buys when RSI dips
// below oversold and attaches a stop-loss/take-profit bracket set at fixed
// percentages of the entry bar's close, exiting purely through that bracket (the engine's
// SL/TP monitor, not a later GenerateOrders call, closes the position).
// Adapted from a momentum signal generator down to the bracket-order shape
// the event loop understands.
type RSIMomentum struct {
	symbol    string
	period    int
	oversold  decimal.Decimal
	stopPct   decimal.Decimal
	targetPct decimal.Decimal
	history   map[string][]decimal.Decimal
}

// NewRSIMomentum builds an RSI mean-reversion strategy for symbol.
func NewRSIMomentum(symbol string, period int) *RSIMomentum {
	return &RSIMomentum{
		symbol:    symbol,
		period:    period,
		oversold:  decimal.NewFromInt(30),
		stopPct:   decimal.NewFromFloat(0.02),
		targetPct: decimal.NewFromFloat(0.04),
	}
}

func (s *RSIMomentum) Name() string { return "rsi_momentum" }

func (s *RSIMomentum) RequiredSymbols() []string { return []string{s.symbol} }

// Initialize resets the close history. data covers the whole run range, so
// closes are collected bar by bar in OnBar instead, keeping the RSI limited
// to closes up to the current bar.
func (s *RSIMomentum) Initialize(data map[string]*bar.TimeSeries) error {
	s.history = make(map[string][]decimal.Decimal)
	return nil
}

func (s *RSIMomentum) OnBar(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) error {
	b, ok := currentBars[s.symbol]
	if !ok {
		return nil
	}
	s.history[s.symbol] = append(s.history[s.symbol], b.Close)
	return nil
}

func (s *RSIMomentum) GenerateOrders(t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) ([]*order.Order, error) {
	b, ok := currentBars[s.symbol]
	if !ok {
		return nil, nil
	}
	if pos := p.GetPosition(s.symbol); pos != nil && pos.IsOpen() {
		return nil, nil // already in a position; exit is via the engine's SL/TP monitor
	}

	value, ok := rsi(s.history[s.symbol], s.period)
	if !ok || value.GreaterThanOrEqual(s.oversold) {
		return nil, nil
	}

	qty := p.Cash().Div(b.Close).Truncate(0)
	if !qty.IsPositive() {
		return nil, nil
	}

	one := decimal.NewFromInt(1)
	entry, _ := b.Close.Float64()
	stopLoss, _ := b.Close.Mul(one.Sub(s.stopPct)).Float64()
	if err := risk.ValidateStopDistance(entry, stopLoss); err != nil {
		return nil, nil // stop falls outside policy bounds; skip this entry
	}

	o, err := order.New(s.symbol, order.Market, qty, t, decimal.Zero)
	if err != nil {
		return nil, nil
	}
	o.WithStopLoss(b.Close.Mul(one.Sub(s.stopPct)))
	o.WithTakeProfit(b.Close.Mul(one.Add(s.targetPct)))
	return []*order.Order{o}, nil
}

func (s *RSIMomentum) Parameters() map[string]float64 {
	v, _ := s.oversold.Float64()
	stop, _ := s.stopPct.Float64()
	target, _ := s.targetPct.Float64()
	return map[string]float64{
		"period":   float64(s.period),
		"oversold": v,
		"stop_pct": stop,
		"target_pct": target,
	}
}

func (s *RSIMomentum) SetParameter(name string, value float64) {
	switch name {
	case "period":
		s.period = int(value)
	case "oversold":
		s.oversold = decimal.NewFromFloat(value)
	case "stop_pct":
		s.stopPct = decimal.NewFromFloat(value)
	case "target_pct":
		s.targetPct = decimal.NewFromFloat(value)
	}
}
