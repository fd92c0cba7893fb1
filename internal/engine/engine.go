// Package engine implements C7, the BacktestEngine: the single-threaded,
// deterministic bar-driven event loop that drives registered strategies
// through a global timeline, monitors stop-loss/take-profit on open
// positions, routes every order through the execution simulator, and
// aggregates the resulting trade ledger into a Results record.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/execution"
	"marketsim/internal/marketdata"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
	"marketsim/internal/risk"
	"marketsim/internal/strategy"
	"marketsim/internal/telemetry"
	"marketsim/internal/trade"
)

// Results is the aggregate record of one completed run (§6.3).
type Results struct {
	InitialCapital decimal.Decimal
	FinalCapital   decimal.Decimal
	Profit         decimal.Decimal
	ReturnPct      decimal.Decimal

	Trades        []*trade.Trade
	TotalTrades   int
	WinningTrades int
	LosingTrades  int

	WinRate      float64
	AverageProfit float64
	AverageLoss   float64
	ProfitFactor  float64
	MaxDrawdown   float64

	// Risk-analyzer pass, only populated when an Analyzer is attached.
	HasRiskMetrics bool
	SharpeRatio    float64
	SortinoRatio   float64
	CalmarRatio    float64
	Expectancy     float64
}

// Engine is C7. It owns no market data or portfolio state between runs:
// every Run call resets the portfolio and rebuilds its working data, so an
// Engine instance is safe to reuse across repeated runs (the evaluator's
// parameter sweep gives each task its own Engine instead, per §5, but
// nothing here forbids reuse).
type Engine struct {
	data           *marketdata.Service
	executor       *execution.Simulator
	strategies     []strategy.Strategy
	initialCapital decimal.Decimal
	riskAnalyzer   *risk.Analyzer
}

// New builds an Engine against data, starting every run from initialCapital
// with the default commission/slippage rates.
func New(data *marketdata.Service, initialCapital decimal.Decimal) *Engine {
	return &Engine{
		data:           data,
		executor:       execution.New(),
		initialCapital: initialCapital,
	}
}

// AddStrategy registers a strategy to run, in the order it will be invoked
// each bar.
func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.strategies = append(e.strategies, s)
}

// RemoveStrategy unregisters a strategy by name; a no-op if not registered.
func (e *Engine) RemoveStrategy(name string) {
	out := e.strategies[:0]
	for _, s := range e.strategies {
		if s.Name() != name {
			out = append(out, s)
		}
	}
	e.strategies = out
}

// SetCommissionRate overrides the executor's commission rate.
func (e *Engine) SetCommissionRate(rate decimal.Decimal) { e.executor.CommissionRate = rate }

// SetSlippage overrides the executor's slippage rate.
func (e *Engine) SetSlippage(rate decimal.Decimal) { e.executor.SlippageRate = rate }

// WithRiskAnalyzer attaches a risk.Analyzer; Run will populate Results'
// Sharpe/Sortino/Calmar/Expectancy fields when one is attached.
func (e *Engine) WithRiskAnalyzer(a *risk.Analyzer) { e.riskAnalyzer = a }

// Run executes the event loop over [start,end] and returns the aggregate
// Results. A strategy error or a data error aborts the run with that error; a
// panic from Initialize/OnBar/GenerateOrders is recovered and reported the
// same way, carrying the offending timestamp where one is available;
// execution misses are not errors and leave the corresponding order unfilled
// (§7).
func (e *Engine) Run(ctx context.Context, start, end time.Time) (*Results, error) {
	runID := telemetry.NewRunID()
	ctx = telemetry.WithRunInfo(ctx, telemetry.RunInfo{RunID: runID})

	port := portfolio.New(e.initialCapital)

	symbols := e.requiredSymbols()
	data := make(map[string]*bar.TimeSeries, len(symbols))
	for _, symbol := range symbols {
		series, err := e.data.Get(ctx, symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("engine: fetch %s: %w", symbol, err)
		}
		data[symbol] = series
	}

	for _, s := range e.strategies {
		if err := initStrategy(s, data); err != nil {
			return nil, fmt.Errorf("engine: strategy %q initialize: %w", s.Name(), err)
		}
	}

	timeline := buildTimeline(data, start, end)

	var trades []*trade.Trade
	for _, t := range timeline {
		currentBars := make(map[string]bar.Bar, len(data))
		for symbol, series := range data {
			if b, ok := series.At(t); ok {
				currentBars[symbol] = b
				telemetry.IncBarsProcessed(symbol)
			}
		}

		if closed := e.monitorStopsAndTargets(t, currentBars, port); len(closed) > 0 {
			trades = append(trades, closed...)
		}

		for _, s := range e.strategies {
			if err := runOnBar(s, t, currentBars, port); err != nil {
				return nil, fmt.Errorf("engine: strategy %q on_bar at %s: %w", s.Name(), t, err)
			}
			orders, err := generateOrders(s, t, currentBars, port)
			if err != nil {
				return nil, fmt.Errorf("engine: strategy %q generate_orders at %s: %w", s.Name(), t, err)
			}
			for _, o := range orders {
				b, ok := currentBars[o.Symbol]
				if !ok {
					continue
				}
				tr, err := e.executor.Fill(o, b, port)
				if err != nil {
					return nil, fmt.Errorf("engine: strategy %q order at %s: %w", s.Name(), t, err)
				}
				if tr != nil {
					trades = append(trades, tr)
					telemetry.IncTradeClosed(tradeResult(tr), "signal")
				}
			}
		}

		telemetry.SetEquity(runID, totalValueFloat(port, currentBars))
	}

	return e.buildResults(port, trades), nil
}

// initStrategy calls s.Initialize, converting a panic into an error so a
// broken strategy aborts the run instead of crashing the process (§7).
func initStrategy(s strategy.Strategy, data map[string]*bar.TimeSeries) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Initialize(data)
}

// runOnBar calls s.OnBar, converting a panic into an error so a broken
// strategy aborts the run carrying the offending timestamp (§7).
func runOnBar(s strategy.Strategy, t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.OnBar(t, currentBars, p)
}

// generateOrders calls s.GenerateOrders, converting a panic into an error so
// a broken strategy aborts the run carrying the offending timestamp (§7).
func generateOrders(s strategy.Strategy, t time.Time, currentBars map[string]bar.Bar, p *portfolio.Portfolio) (orders []*order.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.GenerateOrders(t, currentBars, p)
}

// monitorStopsAndTargets implements the §4.7 SL/TP monitor: for every open
// position whose originating order carries a stop-loss or take-profit,
// check the intra-bar trigger rules and synthesize a flattening MARKET order
// on a hit. SL takes precedence over TP on the same bar (worst-case
// assumption). Positions are visited in symbol order.
func (e *Engine) monitorStopsAndTargets(t time.Time, currentBars map[string]bar.Bar, port *portfolio.Portfolio) []*trade.Trade {
	var closed []*trade.Trade
	positions := port.Positions()
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	for _, pos := range positions {
		origin := pos.OriginatingOrder
		if origin == nil || (!origin.HasStopLoss() && !origin.HasTakeProfit()) {
			continue
		}
		b, ok := currentBars[pos.Symbol]
		if !ok {
			continue
		}

		slHit, tpHit := checkTriggers(pos.Long(), origin, b)
		if !slHit && !tpHit {
			continue
		}

		exitOrder, err := order.NewMarketExit(pos.Symbol, pos.Quantity.Neg(), t)
		if err != nil {
			continue
		}
		tr, err := e.executor.Fill(exitOrder, b, port)
		if err != nil || tr == nil {
			continue
		}
		tr.StopLossHit = slHit
		tr.TakeProfitHit = tpHit && !slHit
		closed = append(closed, tr)

		reason := "take_profit"
		if slHit {
			reason = "stop_loss"
		}
		telemetry.IncTradeClosed(tradeResult(tr), reason)
	}
	return closed
}

func checkTriggers(long bool, origin *order.Order, b bar.Bar) (slHit, tpHit bool) {
	if long {
		if origin.HasStopLoss() && b.Low.LessThanOrEqual(origin.StopLossPrice) {
			slHit = true
		}
		if origin.HasTakeProfit() && b.High.GreaterThanOrEqual(origin.TakeProfitPrice) {
			tpHit = true
		}
		return
	}
	if origin.HasStopLoss() && b.High.GreaterThanOrEqual(origin.StopLossPrice) {
		slHit = true
	}
	if origin.HasTakeProfit() && b.Low.LessThanOrEqual(origin.TakeProfitPrice) {
		tpHit = true
	}
	return
}

func (e *Engine) requiredSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range e.strategies {
		for _, symbol := range s.RequiredSymbols() {
			if !seen[symbol] {
				seen[symbol] = true
				out = append(out, symbol)
			}
		}
	}
	return out
}

// buildTimeline returns the sorted union of bar timestamps across every
// series in data, clipped to [start,end]. Ties across symbols collapse to
// one tick.
func buildTimeline(data map[string]*bar.TimeSeries, start, end time.Time) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	for _, series := range data {
		for _, ts := range series.Timestamps() {
			if ts.Before(start) || ts.After(end) {
				continue
			}
			key := ts.UnixNano()
			if !seen[key] {
				seen[key] = true
				out = append(out, ts)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func tradeResult(t *trade.Trade) string {
	if t.Profit.IsPositive() {
		return "win"
	}
	return "loss"
}

func totalValueFloat(port *portfolio.Portfolio, currentBars map[string]bar.Bar) float64 {
	mark := make(map[string]decimal.Decimal, len(currentBars))
	for symbol, b := range currentBars {
		mark[symbol] = b.Close
	}
	v, _ := port.TotalValue(mark).Float64()
	return v
}

// buildResults computes the §4.7 aggregate Results from the final portfolio
// state and the closed-trade ledger, attaching a risk.Analyzer pass if one
// was configured.
func (e *Engine) buildResults(port *portfolio.Portfolio, trades []*trade.Trade) *Results {
	final := port.TotalValue(nil)
	profit := final.Sub(e.initialCapital)
	returnPct := decimal.Zero
	if e.initialCapital.IsPositive() {
		returnPct = profit.Div(e.initialCapital).Mul(decimal.NewFromInt(100))
	}

	r := &Results{
		InitialCapital: e.initialCapital,
		FinalCapital:   final,
		Profit:         profit,
		ReturnPct:      returnPct,
		Trades:         trades,
		TotalTrades:    len(trades),
	}

	var winSum, lossSum float64
	capitalSeq := make([]float64, 0, len(trades)+1)
	initF, _ := e.initialCapital.Float64()
	capitalSeq = append(capitalSeq, initF)

	for _, t := range trades {
		p, _ := t.Profit.Float64()
		switch {
		case p > 0:
			r.WinningTrades++
			winSum += p
		case p < 0:
			r.LosingTrades++
			lossSum += -p
		}
		capAfter, _ := t.CapitalAfterTrade.Float64()
		capitalSeq = append(capitalSeq, capAfter)
	}

	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	}
	if r.WinningTrades > 0 {
		r.AverageProfit = winSum / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = lossSum / float64(r.LosingTrades)
	}
	if lossSum > 0 {
		r.ProfitFactor = winSum / lossSum
	}
	r.MaxDrawdown = drawdownOverCapitalSequence(capitalSeq)

	if e.riskAnalyzer != nil {
		m := e.riskAnalyzer.Analyze(initF, trades)
		r.HasRiskMetrics = true
		r.SharpeRatio = m.Sharpe
		r.SortinoRatio = m.Sortino
		r.CalmarRatio = m.Calmar
		r.Expectancy = m.Expectancy
	}

	return r
}

// drawdownOverCapitalSequence walks capital-after-trade values with a
// running high-water mark, per §4.7: dd_i = (hwm_i-cap_i)/hwm_i*100.
func drawdownOverCapitalSequence(seq []float64) float64 {
	if len(seq) == 0 {
		return 0
	}
	hwm := seq[0]
	maxDD := 0.0
	for _, c := range seq {
		if c > hwm {
			hwm = c
		}
		if hwm <= 0 {
			continue
		}
		dd := (hwm - c) / hwm * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
