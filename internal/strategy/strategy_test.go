package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/portfolio"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func day(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }

func mustBar(t *testing.T, ts time.Time, close string) bar.Bar {
	t.Helper()
	c := d(close)
	b, err := bar.New(ts, c, c, c, c, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("bar.New: %v", err)
	}
	return b
}

func TestSMAInsufficientHistory(t *testing.T) {
	closes := []decimal.Decimal{d("1"), d("2")}
	if _, ok := sma(closes, 5); ok {
		t.Fatal("expected sma to report insufficient history")
	}
}

func TestSMAComputesAverage(t *testing.T) {
	closes := []decimal.Decimal{d("1"), d("2"), d("3")}
	avg, ok := sma(closes, 3)
	if !ok {
		t.Fatal("expected sma to succeed")
	}
	if !avg.Equal(d("2")) {
		t.Fatalf("expected average 2, got %s", avg)
	}
}

func TestRSIAllGainsYieldsHundred(t *testing.T) {
	closes := []decimal.Decimal{d("1"), d("2"), d("3"), d("4")}
	value, ok := rsi(closes, 3)
	if !ok {
		t.Fatal("expected rsi to succeed")
	}
	if !value.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected RSI 100 on all-gains series, got %s", value)
	}
}

func TestMACrossoverEntersOnGoldenCross(t *testing.T) {
	s := NewMACrossover("TEST", 2, 3)
	s.Initialize(map[string]*bar.TimeSeries{})
	port := portfolio.New(d("10000"))

	// Feed a declining-then-rising series so fast SMA crosses above slow.
	prices := []string{"10", "9", "8", "9", "11", "13"}
	var lastOrders int
	for i, p := range prices {
		bars := map[string]bar.Bar{"TEST": mustBar(t, day(i+1), p)}
		if err := s.OnBar(day(i+1), bars, port); err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		orders, err := s.GenerateOrders(day(i+1), bars, port)
		if err != nil {
			t.Fatalf("GenerateOrders: %v", err)
		}
		lastOrders += len(orders)
	}
	if lastOrders == 0 {
		t.Fatal("expected at least one entry order across the crossover series")
	}
}

func TestRSIMomentumSkipsEntryWhenStopTooTight(t *testing.T) {
	s := NewRSIMomentum("TEST", 3)
	s.Initialize(map[string]*bar.TimeSeries{})
	s.SetParameter("stop_pct", 0.001) // well inside risk.DefaultMinStopDistance
	port := portfolio.New(d("10000"))

	prices := []string{"10", "9", "8", "7"}
	var total int
	for i, p := range prices {
		bars := map[string]bar.Bar{"TEST": mustBar(t, day(i+1), p)}
		if err := s.OnBar(day(i+1), bars, port); err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		orders, err := s.GenerateOrders(day(i+1), bars, port)
		if err != nil {
			t.Fatalf("GenerateOrders: %v", err)
		}
		total += len(orders)
	}
	if total != 0 {
		t.Fatalf("expected no entries when the configured stop falls outside policy bounds, got %d", total)
	}
}

func TestRSIMomentumEntersOnOversold(t *testing.T) {
	s := NewRSIMomentum("TEST", 3)
	s.Initialize(map[string]*bar.TimeSeries{})
	port := portfolio.New(d("10000"))

	prices := []string{"10", "9", "8", "7"}
	var got []int
	for i, p := range prices {
		bars := map[string]bar.Bar{"TEST": mustBar(t, day(i+1), p)}
		if err := s.OnBar(day(i+1), bars, port); err != nil {
			t.Fatalf("OnBar: %v", err)
		}
		orders, err := s.GenerateOrders(day(i+1), bars, port)
		if err != nil {
			t.Fatalf("GenerateOrders: %v", err)
		}
		got = append(got, len(orders))
	}
	any := false
	for _, n := range got {
		if n > 0 {
			any = true
		}
	}
	if !any {
		t.Fatal("expected an entry order on a declining (oversold) price series")
	}
}
