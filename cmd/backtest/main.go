// cmd/backtest is a thin CLI wrapper around the marketsim library: it wires a
// CSV dataset (through the registry, or straight from a directory), builds a strategy, runs the backtest
// engine over a date range, and prints the resulting Results as JSON.
//
// It demonstrates end-to-end wiring only — it is not a trading service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
	"marketsim/internal/dataset"
	"marketsim/internal/engine"
	"marketsim/internal/marketdata"
	"marketsim/internal/risk"
	"marketsim/internal/strategy"
)

const dateFmt = "2006-01-02"

type config struct {
	datasetDir     string
	datasetID      string
	csvDir         string
	symbol         string
	strategyName   string
	fastPeriod     int
	slowPeriod     int
	rsiPeriod      int
	startDate      string
	endDate        string
	initialCapital float64
	commission     float64
	slippage       float64
}

func main() {
	cfg := parseFlags()

	if err := run(cfg); err != nil {
		log.Fatalf("backtest: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.datasetDir, "dataset-dir", envOrDefault("DATASET_DIR", filepath.Join("data", "datasets")), "dataset catalogue directory")
	flag.StringVar(&cfg.datasetID, "dataset-id", "", "registered dataset UUID (mutually exclusive with -csv-dir)")
	flag.StringVar(&cfg.csvDir, "csv-dir", "", "directory of raw per-symbol CSV files (loaded directly, bypassing the catalogue)")
	flag.StringVar(&cfg.symbol, "symbol", "", "symbol to back-test (required)")
	flag.StringVar(&cfg.strategyName, "strategy", "ma-crossover", "strategy to run: ma-crossover | rsi-momentum")
	flag.IntVar(&cfg.fastPeriod, "fast", 10, "ma-crossover fast period")
	flag.IntVar(&cfg.slowPeriod, "slow", 30, "ma-crossover slow period")
	flag.IntVar(&cfg.rsiPeriod, "rsi-period", 14, "rsi-momentum lookback period")
	flag.StringVar(&cfg.startDate, "start", "", "start date, YYYY-MM-DD (required)")
	flag.StringVar(&cfg.endDate, "end", "", "end date, YYYY-MM-DD (required)")
	flag.Float64Var(&cfg.initialCapital, "capital", 100000, "initial capital")
	flag.Float64Var(&cfg.commission, "commission", 0.001, "commission rate (fraction)")
	flag.Float64Var(&cfg.slippage, "slippage", 0.001, "slippage rate (fraction)")
	flag.Parse()
	return cfg
}

func run(cfg config) error {
	if cfg.symbol == "" {
		return fmt.Errorf("-symbol is required")
	}
	if cfg.startDate == "" || cfg.endDate == "" {
		return fmt.Errorf("-start and -end are required (YYYY-MM-DD)")
	}
	start, err := time.Parse(dateFmt, cfg.startDate)
	if err != nil {
		return fmt.Errorf("-start must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse(dateFmt, cfg.endDate)
	if err != nil {
		return fmt.Errorf("-end must be YYYY-MM-DD: %w", err)
	}

	loader, err := resolveLoader(cfg)
	if err != nil {
		return err
	}

	svc := marketdata.NewService(loader)

	s, err := buildStrategy(cfg)
	if err != nil {
		return err
	}

	initialCapital := decimal.NewFromFloat(cfg.initialCapital)
	eng := engine.New(svc, initialCapital)
	eng.SetCommissionRate(decimal.NewFromFloat(cfg.commission))
	eng.SetSlippage(decimal.NewFromFloat(cfg.slippage))
	eng.WithRiskAnalyzer(risk.New())
	eng.AddStrategy(s)

	log.Printf("backtest: strategy=%s symbol=%s range=[%s,%s] capital=%.2f",
		s.Name(), cfg.symbol, cfg.startDate, cfg.endDate, cfg.initialCapital)

	results, err := eng.Run(context.Background(), start, end)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	log.Printf("backtest: complete trades=%d winRate=%.1f%% returnPct=%s maxDrawdown=%.2f%%",
		results.TotalTrades, results.WinRate, results.ReturnPct.StringFixed(2), results.MaxDrawdown)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// resolveLoader picks a marketdata.Loader: either a registered dataset
// (preferred, since it carries an integrity hash) or a raw CSV directory.
func resolveLoader(cfg config) (marketdata.Loader, error) {
	if cfg.datasetID != "" {
		reg, err := dataset.Open(cfg.datasetDir)
		if err != nil {
			return nil, fmt.Errorf("open dataset registry at %q: %w", cfg.datasetDir, err)
		}
		if err := reg.VerifyHash(cfg.datasetID); err != nil {
			return nil, fmt.Errorf("dataset integrity check failed: %w", err)
		}
		return &registryLoader{reg: reg, datasetID: cfg.datasetID}, nil
	}
	if cfg.csvDir != "" {
		return marketdata.NewCSVLoader(cfg.csvDir, nil), nil
	}
	return nil, fmt.Errorf("one of -dataset-id or -csv-dir is required")
}

// registryLoader adapts a dataset.Registry entry to the marketdata.Loader
// contract expected by the Service.
type registryLoader struct {
	reg       *dataset.Registry
	datasetID string
}

func (r *registryLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	series, err := r.reg.Load(ctx, r.datasetID)
	if err != nil {
		return nil, err
	}
	return series.Sub(start, end), nil
}

func buildStrategy(cfg config) (strategy.Strategy, error) {
	switch cfg.strategyName {
	case "ma-crossover":
		return strategy.NewMACrossover(cfg.symbol, cfg.fastPeriod, cfg.slowPeriod), nil
	case "rsi-momentum":
		return strategy.NewRSIMomentum(cfg.symbol, cfg.rsiPeriod), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want ma-crossover or rsi-momentum)", cfg.strategyName)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
