// Package evaluator implements C9: parallel parameter sweeps and a
// walk-forward train/test scheduler built on top of a single-threaded
// Engine run per task. Parallelism here is the only place in the module
// that runs backtests concurrently (§5) — each task gets its own Engine and
// Portfolio; only the read-only cached market data is shared.
package evaluator

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"marketsim/internal/engine"
	"marketsim/internal/marketdata"
	"marketsim/internal/strategy"
	"marketsim/internal/telemetry"
)

// ParamSet is one point in the sweep: parameter name to value.
type ParamSet map[string]float64

// Factory builds a fresh, unconfigured strategy instance for one task. Each
// task calls Factory once so tasks never share strategy internal state.
type Factory func() strategy.Strategy

// Config carries the run parameters shared by every task in a sweep.
type Config struct {
	InitialCapital decimal.Decimal
	CommissionRate decimal.Decimal
	SlippageRate   decimal.Decimal
}

// TaskResult pairs one parameter set with the Engine Results it produced.
type TaskResult struct {
	Params  ParamSet
	Results *engine.Results
}

// Evaluator owns the bounded worker pool used by EvaluateParameters and
// WalkForwardOptimization. A single Evaluator may run many sweeps; Shutdown
// marks it unusable once the caller is done.
type Evaluator struct {
	data    *marketdata.Service
	workers int

	mu     sync.Mutex
	closed bool
}

// New builds an Evaluator backed by data, sizing its worker pool to
// max(1, NumCPU-1) per §4.9.
func New(data *marketdata.Service) *Evaluator {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{data: data, workers: workers}
}

// Shutdown marks the Evaluator closed; later EvaluateParameters and
// WalkForwardOptimization calls return an error. Worker goroutines live only
// for the duration of a single sweep, so there is nothing else to release.
func (e *Evaluator) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

var errShutdown = fmt.Errorf("evaluator: shut down")

// EvaluateParameters pre-fetches historical data once, then runs one
// independent backtest per parameter set over a bounded pool of
// max(1, NumCPU-1) workers, returning results sorted descending by
// return_pct. Any task error aborts the whole sweep with that error (§7).
func (e *Evaluator) EvaluateParameters(ctx context.Context, factory Factory, paramSets []ParamSet, symbol string, start, end time.Time, cfg Config) ([]TaskResult, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errShutdown
	}

	if _, err := e.data.Get(ctx, symbol, start, end); err != nil {
		return nil, fmt.Errorf("evaluator: pre-fetch %s: %w", symbol, err)
	}

	results := make([]TaskResult, len(paramSets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, params := range paramSets {
		i, params := i, params
		g.Go(func() error {
			s := factory()
			for name, value := range params {
				s.SetParameter(name, value)
			}

			eng := engine.New(e.data, cfg.InitialCapital)
			eng.SetCommissionRate(cfg.CommissionRate)
			eng.SetSlippage(cfg.SlippageRate)
			eng.AddStrategy(s)

			r, err := eng.Run(gctx, start, end)
			if err != nil {
				telemetry.IncEvaluatorTask("error")
				return fmt.Errorf("evaluator: task %d: %w", i, err)
			}
			telemetry.IncEvaluatorTask("ok")
			results[i] = TaskResult{Params: params, Results: r}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Results.ReturnPct.GreaterThan(results[j].Results.ReturnPct)
	})
	return results, nil
}
