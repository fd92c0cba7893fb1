package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/marketdata"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
	"marketsim/internal/risk"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }

func flatBar(t *testing.T, ts time.Time, price string) bar.Bar {
	t.Helper()
	p := d(price)
	b, err := bar.New(ts, p, p, p, p, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("bar.New: %v", err)
	}
	return b
}

// fakeLoader serves a fixed series, ignoring the requested range beyond
// what the series itself already contains.
type fakeLoader struct{ series map[string]*bar.TimeSeries }

func (f *fakeLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	return f.series[symbol].Sub(start, end), nil
}

// noopStrategy never trades; used for the no-trade-run scenario.
type noopStrategy struct{ symbol string }

func (s *noopStrategy) Name() string              { return "noop" }
func (s *noopStrategy) RequiredSymbols() []string { return []string{s.symbol} }
func (s *noopStrategy) Initialize(map[string]*bar.TimeSeries) error { return nil }
func (s *noopStrategy) OnBar(time.Time, map[string]bar.Bar, *portfolio.Portfolio) error {
	return nil
}
func (s *noopStrategy) GenerateOrders(time.Time, map[string]bar.Bar, *portfolio.Portfolio) ([]*order.Order, error) {
	return nil, nil
}
func (s *noopStrategy) Parameters() map[string]float64 { return nil }
func (s *noopStrategy) SetParameter(string, float64)   {}

// scriptedStrategy issues one order on a specific day and nothing else.
type scriptedStrategy struct {
	symbol string
	day    int
	build  func(t time.Time) *order.Order
	fired  bool

	// failOn, when non-zero, makes GenerateOrders fail (or panic, if
	// failPanic is set) on that day instead of building an order.
	failOn    int
	failPanic bool
}

func (s *scriptedStrategy) Name() string              { return "scripted" }
func (s *scriptedStrategy) RequiredSymbols() []string { return []string{s.symbol} }
func (s *scriptedStrategy) Initialize(map[string]*bar.TimeSeries) error { return nil }
func (s *scriptedStrategy) OnBar(time.Time, map[string]bar.Bar, *portfolio.Portfolio) error {
	return nil
}
func (s *scriptedStrategy) GenerateOrders(t time.Time, bars map[string]bar.Bar, p *portfolio.Portfolio) ([]*order.Order, error) {
	if s.failOn != 0 && t.Equal(day(s.failOn)) {
		if s.failPanic {
			panic("scriptedStrategy: deliberate panic")
		}
		return nil, fmt.Errorf("scriptedStrategy: deliberate failure")
	}
	if s.fired || !t.Equal(day(s.day)) {
		return nil, nil
	}
	s.fired = true
	return []*order.Order{s.build(t)}, nil
}
func (s *scriptedStrategy) Parameters() map[string]float64 { return nil }
func (s *scriptedStrategy) SetParameter(string, float64)   {}

func buildDailySeries(t *testing.T, symbol string, n int, price string) *bar.TimeSeries {
	t.Helper()
	series := bar.NewTimeSeries(symbol)
	for i := 1; i <= n; i++ {
		series.Add(flatBar(t, day(i), price))
	}
	return series
}

func TestNoTradeRun(t *testing.T) {
	series := buildDailySeries(t, "TEST", 30, "100")
	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.AddStrategy(&noopStrategy{symbol: "TEST"})

	results, err := e.Run(context.Background(), day(1), day(30))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.TotalTrades != 0 {
		t.Fatalf("expected 0 trades, got %d", results.TotalTrades)
	}
	if !results.FinalCapital.Equal(d("10000")) {
		t.Fatalf("expected final capital 10000, got %s", results.FinalCapital)
	}
	if results.MaxDrawdown != 0 {
		t.Fatalf("expected 0 drawdown, got %v", results.MaxDrawdown)
	}
}

func TestSingleLongRoundTrip(t *testing.T) {
	series := bar.NewTimeSeries("TEST")
	opens := []string{"100", "101", "102", "103", "104", "110"}
	for i, o := range opens {
		ts := day(i + 1)
		open := d(o)
		b, err := bar.New(ts, open, open, open, open, decimal.NewFromInt(1000))
		if err != nil {
			t.Fatalf("bar.New: %v", err)
		}
		series.Add(b)
	}
	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.SetCommissionRate(decimal.Zero)
	e.SetSlippage(decimal.Zero)

	buy := &scriptedStrategy{symbol: "TEST", day: 1, build: func(t time.Time) *order.Order {
		o, _ := order.New("TEST", order.Market, d("10"), t, decimal.Zero)
		return o
	}}
	sell := &scriptedStrategy{symbol: "TEST", day: 6, build: func(t time.Time) *order.Order {
		o, _ := order.New("TEST", order.Market, d("-10"), t, decimal.Zero)
		return o
	}}
	e.AddStrategy(buy)
	e.AddStrategy(sell)

	results, err := e.Run(context.Background(), day(1), day(6))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.TotalTrades != 1 {
		t.Fatalf("expected 1 trade, got %d", results.TotalTrades)
	}
	profit, _ := results.Trades[0].Profit.Float64()
	if profit != 100 {
		t.Fatalf("expected profit 100, got %v", profit)
	}
	if results.WinRate != 100 {
		t.Fatalf("expected win rate 100, got %v", results.WinRate)
	}
}

func TestStopLossTakesPrecedenceOverTakeProfitOnTie(t *testing.T) {
	series := bar.NewTimeSeries("TEST")
	// Day 1: entry at open=100. Day 2: a wide bar whose low breaches the SL
	// and whose high breaches the TP in the same tick.
	b1, _ := bar.New(day(1), d("100"), d("100"), d("100"), d("100"), decimal.NewFromInt(1000))
	b2, _ := bar.New(day(2), d("100"), d("130"), d("70"), d("100"), decimal.NewFromInt(1000))
	series.Add(b1)
	series.Add(b2)

	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.SetCommissionRate(decimal.Zero)
	e.SetSlippage(decimal.Zero)

	entry := &scriptedStrategy{symbol: "TEST", day: 1, build: func(t time.Time) *order.Order {
		o, _ := order.New("TEST", order.Market, d("10"), t, decimal.Zero)
		o.WithStopLoss(d("80"))
		o.WithTakeProfit(d("120"))
		return o
	}}
	e.AddStrategy(entry)

	results, err := e.Run(context.Background(), day(1), day(2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results.TotalTrades != 1 {
		t.Fatalf("expected exactly 1 exit trade, got %d", results.TotalTrades)
	}
	tr := results.Trades[0]
	if !tr.StopLossHit {
		t.Fatal("expected stop-loss to take precedence on a same-bar SL/TP tie")
	}
	if tr.TakeProfitHit {
		t.Fatal("expected take-profit NOT to be marked hit when SL wins the tie")
	}
}

func TestWithRiskAnalyzerPopulatesRiskMetrics(t *testing.T) {
	series := bar.NewTimeSeries("TEST")
	opens := []string{"100", "101", "102", "103", "104", "110", "109", "95", "96", "120"}
	for i, o := range opens {
		ts := day(i + 1)
		open := d(o)
		b, err := bar.New(ts, open, open, open, open, decimal.NewFromInt(1000))
		if err != nil {
			t.Fatalf("bar.New: %v", err)
		}
		series.Add(b)
	}
	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.SetCommissionRate(decimal.Zero)
	e.SetSlippage(decimal.Zero)
	e.WithRiskAnalyzer(risk.New())

	buy := &scriptedStrategy{symbol: "TEST", day: 1, build: func(t time.Time) *order.Order {
		o, _ := order.New("TEST", order.Market, d("10"), t, decimal.Zero)
		return o
	}}
	sell := &scriptedStrategy{symbol: "TEST", day: 10, build: func(t time.Time) *order.Order {
		o, _ := order.New("TEST", order.Market, d("-10"), t, decimal.Zero)
		return o
	}}
	e.AddStrategy(buy)
	e.AddStrategy(sell)

	results, err := e.Run(context.Background(), day(1), day(10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results.HasRiskMetrics {
		t.Fatal("expected HasRiskMetrics to be true when a risk.Analyzer is attached")
	}
	if results.SharpeRatio == 0 && results.SortinoRatio == 0 && results.CalmarRatio == 0 {
		t.Fatal("expected at least one non-zero risk metric for a single winning trade")
	}
}

func TestStrategyErrorAbortsRunWithTimestamp(t *testing.T) {
	series := buildDailySeries(t, "TEST", 10, "100")
	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.AddStrategy(&scriptedStrategy{symbol: "TEST", day: 0, failOn: 5})

	_, err := e.Run(context.Background(), day(1), day(10))
	if err == nil {
		t.Fatal("expected Run to return an error when a strategy fails")
	}
	wantTS := day(5).String()
	if !strings.Contains(err.Error(), wantTS) {
		t.Fatalf("expected error to carry the offending timestamp %s, got: %v", wantTS, err)
	}
}

func TestStrategyPanicAbortsRunWithTimestamp(t *testing.T) {
	series := buildDailySeries(t, "TEST", 10, "100")
	loader := &fakeLoader{series: map[string]*bar.TimeSeries{"TEST": series}}
	svc := marketdata.NewService(loader)

	e := New(svc, d("10000"))
	e.AddStrategy(&scriptedStrategy{symbol: "TEST", day: 0, failOn: 7, failPanic: true})

	_, err := e.Run(context.Background(), day(1), day(10))
	if err == nil {
		t.Fatal("expected Run to return an error when a strategy panics")
	}
	wantTS := day(7).String()
	if !strings.Contains(err.Error(), wantTS) {
		t.Fatalf("expected error to carry the offending timestamp %s, got: %v", wantTS, err)
	}
	if !strings.Contains(err.Error(), "deliberate panic") {
		t.Fatalf("expected error to carry the panic value, got: %v", err)
	}
}
