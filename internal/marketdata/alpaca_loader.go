package marketdata

import (
	"context"
	"fmt"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
)

// AlpacaBarsLoader fetches historical daily bars from Alpaca's market-data
// API. It only exercises the historical-bars endpoint — no order placement,
// no streaming — keeping live trading out of scope while still giving the
// API key/secret pair a genuine, spec-shaped home as an alternate Loader.
type AlpacaBarsLoader struct {
	client *alpacamd.Client
}

// NewAlpacaBarsLoader builds a loader against Alpaca's market-data API.
func NewAlpacaBarsLoader(apiKey, apiSecret string) *AlpacaBarsLoader {
	client := alpacamd.NewClient(alpacamd.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return &AlpacaBarsLoader{client: client}
}

// Load implements Loader.
func (l *AlpacaBarsLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	bars, err := l.client.GetBars(symbol, alpacamd.GetBarsRequest{
		TimeFrame: alpacamd.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("marketdata: alpaca GetBars(%s): %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s in [%s,%s]", ErrEmptyRange, symbol, start, end)
	}

	series := bar.NewTimeSeries(symbol)
	for _, ab := range bars {
		b, err := bar.New(
			ab.Timestamp,
			decimal.NewFromFloat(ab.Open),
			decimal.NewFromFloat(ab.High),
			decimal.NewFromFloat(ab.Low),
			decimal.NewFromFloat(ab.Close),
			decimal.NewFromFloat(ab.Volume),
		)
		if err != nil {
			continue // malformed upstream bar: skip rather than abort the whole load
		}
		series.Add(b)
	}
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w: %s in [%s,%s]", ErrEmptyRange, symbol, start, end)
	}
	return series, nil
}
