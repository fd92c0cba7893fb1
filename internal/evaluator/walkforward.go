package evaluator

import (
	"context"
	"fmt"
	"time"

	"marketsim/internal/engine"
	"marketsim/internal/risk"
	"marketsim/internal/telemetry"
	"marketsim/internal/trade"
)

// Window is one train/test pair of a walk-forward split.
type Window struct {
	Index      int
	TrainStart time.Time
	TrainEnd   time.Time
	TestStart  time.Time
	TestEnd    time.Time
}

// WindowResult is the chosen parameter set and test-leg outcome for one
// Window.
type WindowResult struct {
	Window
	BestParams ParamSet
	Results    *engine.Results
}

// WalkForwardResult is the §4.9 aggregate: the concatenated test-trade
// sequence across all windows, overall RiskMetrics over that sequence, and
// the per-parameter most-frequent chosen value.
type WalkForwardResult struct {
	Windows       []WindowResult
	Trades        []*trade.Trade
	Metrics       risk.Metrics
	BestParameter map[string]float64 // most-frequent value per parameter name
}

// buildWindows splits [start,end] into consecutive, non-overlapping windows
// of trainDays+testDays each; a final partial window is discarded. Each leg
// ends one nanosecond before the next begins, since ranges are inclusive.
func buildWindows(start, end time.Time, trainDays, testDays int) []Window {
	span := time.Duration(trainDays+testDays) * 24 * time.Hour
	var windows []Window
	idx := 0
	cursor := start
	for {
		trainStart := cursor
		testStart := trainStart.Add(time.Duration(trainDays) * 24 * time.Hour)
		trainEnd := testStart.Add(-time.Nanosecond)
		testEnd := testStart.Add(time.Duration(testDays)*24*time.Hour - time.Nanosecond)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Window{
			Index: idx, TrainStart: trainStart, TrainEnd: trainEnd,
			TestStart: testStart, TestEnd: testEnd,
		})
		idx++
		cursor = cursor.Add(span)
	}
	return windows
}

// WalkForwardOptimization runs the §4.9 walk-forward scheduler: for each
// window, sweep paramSets on the train leg, pick the top-ranked set by
// return_pct, re-run a single backtest on the test leg with that set, and
// retain its trades and metrics. Aggregation concatenates every window's
// test trades and tracks the most-frequent value chosen per parameter
// (ties broken by first-seen).
func (e *Evaluator) WalkForwardOptimization(ctx context.Context, factory Factory, paramSets []ParamSet, symbol string, start, end time.Time, cfg Config, trainDays, testDays int) (*WalkForwardResult, error) {
	windows := buildWindows(start, end, trainDays, testDays)
	if len(windows) == 0 {
		return nil, fmt.Errorf("evaluator: range too short for a single %d+%d day window", trainDays, testDays)
	}

	usageCounts := make(map[string]map[float64]int)
	firstSeenOrder := make(map[string][]float64)

	var results []WindowResult
	var allTrades []*trade.Trade

	for _, w := range windows {
		trainResults, err := e.EvaluateParameters(ctx, factory, paramSets, symbol, w.TrainStart, w.TrainEnd, cfg)
		if err != nil {
			return nil, fmt.Errorf("evaluator: window %d train sweep: %w", w.Index, err)
		}
		if len(trainResults) == 0 {
			continue
		}
		best := trainResults[0] // EvaluateParameters already sorts descending by return_pct

		s := factory()
		for name, value := range best.Params {
			s.SetParameter(name, value)
			if usageCounts[name] == nil {
				usageCounts[name] = make(map[float64]int)
			}
			if usageCounts[name][value] == 0 {
				firstSeenOrder[name] = append(firstSeenOrder[name], value)
			}
			usageCounts[name][value]++
		}

		eng := engine.New(e.data, cfg.InitialCapital)
		eng.SetCommissionRate(cfg.CommissionRate)
		eng.SetSlippage(cfg.SlippageRate)
		eng.AddStrategy(s)

		testResult, err := eng.Run(ctx, w.TestStart, w.TestEnd)
		if err != nil {
			return nil, fmt.Errorf("evaluator: window %d test run: %w", w.Index, err)
		}

		results = append(results, WindowResult{Window: w, BestParams: best.Params, Results: testResult})
		allTrades = append(allTrades, testResult.Trades...)
		telemetry.IncWalkForwardWindow()
	}

	initF, _ := cfg.InitialCapital.Float64()
	analyzer := risk.New()
	metrics := analyzer.Analyze(initF, allTrades)

	bestParam := make(map[string]float64, len(usageCounts))
	for name, counts := range usageCounts {
		bestValue := firstSeenOrder[name][0]
		bestCount := counts[bestValue]
		for _, v := range firstSeenOrder[name][1:] {
			if counts[v] > bestCount {
				bestValue = v
				bestCount = counts[v]
			}
		}
		bestParam[name] = bestValue
	}

	return &WalkForwardResult{
		Windows:       results,
		Trades:        allTrades,
		Metrics:       metrics,
		BestParameter: bestParam,
	}, nil
}
