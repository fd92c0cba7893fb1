package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/order"
	"marketsim/internal/portfolio"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func mustBar(t *testing.T, ts time.Time, o, h, l, c string) bar.Bar {
	t.Helper()
	b, err := bar.New(ts, d(o), d(h), d(l), d(c), d("1000"))
	if err != nil {
		t.Fatalf("unexpected bar error: %v", err)
	}
	return b
}

func zeroCostSim() *Simulator {
	return &Simulator{SlippageRate: decimal.Zero, CommissionRate: decimal.Zero}
}

// Scenario 2: single long round-trip, no commission/slippage.
func TestSingleLongRoundTrip(t *testing.T) {
	sim := zeroCostSim()
	port := portfolio.New(d("10000"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	buyBar := mustBar(t, base, "100", "102", "99", "101")
	buy, err := order.New("AAPL", order.Market, d("10"), base, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := sim.Fill(buy, buyBar, port)
	if err != nil {
		t.Fatalf("buy fill error: %v", err)
	}
	if tr != nil {
		t.Fatal("expected no trade on opening fill")
	}

	sellBar := mustBar(t, base.Add(5*24*time.Hour), "110", "112", "108", "111")
	sell, err := order.New("AAPL", order.Market, d("-10"), sellBar.Timestamp, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	tr, err = sim.Fill(sell, sellBar, port)
	if err != nil {
		t.Fatalf("sell fill error: %v", err)
	}
	if tr == nil {
		t.Fatal("expected a trade on the closing fill")
	}
	if !tr.Profit.Equal(d("100")) {
		t.Errorf("expected profit 100, got %s", tr.Profit)
	}
	if !tr.ProfitPct.Equal(d("10")) {
		t.Errorf("expected profit_pct 10, got %s", tr.ProfitPct)
	}
	if !tr.IsLong {
		t.Error("expected is_long true")
	}
}

// Scenario 3: commission drag.
func TestCommissionDrag(t *testing.T) {
	sim := &Simulator{SlippageRate: decimal.Zero, CommissionRate: d("0.01")}
	port := portfolio.New(d("10000"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	buyBar := mustBar(t, base, "100", "102", "99", "101")
	buy, _ := order.New("AAPL", order.Market, d("10"), base, decimal.Zero)
	sim.Fill(buy, buyBar, port)

	sellBar := mustBar(t, base.Add(5*24*time.Hour), "110", "112", "108", "111")
	sell, _ := order.New("AAPL", order.Market, d("-10"), sellBar.Timestamp, decimal.Zero)
	tr, err := sim.Fill(sell, sellBar, port)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil {
		t.Fatal("expected trade")
	}
	want := d("79") // 100 - 0.01*(1000+1100)
	if !tr.Profit.Equal(want) {
		t.Errorf("expected profit %s, got %s", want, tr.Profit)
	}
}

// Scenario 4: slippage drag.
func TestSlippageDrag(t *testing.T) {
	sim := &Simulator{SlippageRate: d("0.01"), CommissionRate: decimal.Zero}
	port := portfolio.New(d("10000"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	buyBar := mustBar(t, base, "100", "102", "99", "101")
	buy, _ := order.New("AAPL", order.Market, d("10"), base, decimal.Zero)
	sim.Fill(buy, buyBar, port)

	sellBar := mustBar(t, base.Add(5*24*time.Hour), "110", "112", "108", "111")
	sell, _ := order.New("AAPL", order.Market, d("-10"), sellBar.Timestamp, decimal.Zero)
	tr, err := sim.Fill(sell, sellBar, port)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil {
		t.Fatal("expected trade")
	}
	want := d("79") // buy@101, sell@108.9 => (108.9-101)*10
	if !tr.Profit.Equal(want) {
		t.Errorf("expected profit %s, got %s", want, tr.Profit)
	}
}

func TestLimitBuyOnlyFillsWhenLowBreaches(t *testing.T) {
	sim := zeroCostSim()
	port := portfolio.New(d("10000"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	noFillBar := mustBar(t, base, "100", "102", "99.5", "101")
	limitBuy, _ := order.New("AAPL", order.Limit, d("10"), base, d("99"))
	tr, err := sim.Fill(limitBuy, noFillBar, port)
	if err != nil {
		t.Fatal(err)
	}
	if tr != nil || limitBuy.Executed() {
		t.Fatal("expected no fill when bar.low does not breach the limit trigger")
	}

	fillBar := mustBar(t, base.Add(24*time.Hour), "100", "102", "98", "101")
	tr, err = sim.Fill(limitBuy, fillBar, port)
	if err != nil {
		t.Fatal(err)
	}
	if !limitBuy.Executed() {
		t.Fatal("expected limit buy to fill once bar.low <= trigger")
	}
	if !limitBuy.ExecutionPrice().Equal(d("99")) {
		t.Errorf("expected fill at trigger price 99, got %s", limitBuy.ExecutionPrice())
	}
}

func TestStopSellFillsAtTriggerWithSlippage(t *testing.T) {
	sim := &Simulator{SlippageRate: d("0.01"), CommissionRate: decimal.Zero}
	port := portfolio.New(d("10000"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	port.UpdatePosition("AAPL", d("10"), d("100"), d("0"), base)

	bar1 := mustBar(t, base.Add(24*time.Hour), "99", "100", "94", "95")
	stopSell, _ := order.New("AAPL", order.Stop, d("-10"), base, d("95"))
	tr, err := sim.Fill(stopSell, bar1, port)
	if err != nil {
		t.Fatal(err)
	}
	if tr == nil {
		t.Fatal("expected stop sell to fill since bar.low <= trigger")
	}
	want := d("95").Mul(d("0.99"))
	if !stopSell.ExecutionPrice().Equal(want) {
		t.Errorf("expected fill price %s, got %s", want, stopSell.ExecutionPrice())
	}
}

func TestInsufficientCashYieldsNoTradeNoError(t *testing.T) {
	sim := zeroCostSim()
	port := portfolio.New(d("100"))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	buyBar := mustBar(t, base, "100", "102", "99", "101")
	buy, _ := order.New("AAPL", order.Market, d("10"), base, decimal.Zero)

	tr, err := sim.Fill(buy, buyBar, port)
	if err != nil {
		t.Fatalf("expected execution miss to be non-fatal, got error: %v", err)
	}
	if tr != nil {
		t.Fatal("expected no trade on rejected fill")
	}
	if buy.Executed() {
		t.Fatal("expected order to remain unexecuted on rejected fill")
	}
}
