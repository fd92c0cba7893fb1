package marketdata

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
)

// PolygonBarsLoader fetches historical daily aggregates from Polygon.io.
// Like AlpacaBarsLoader, this is a pure historical-data collaborator behind
// the Loader contract — no quotes, no streaming.
type PolygonBarsLoader struct {
	client *polygon.Client
}

// NewPolygonBarsLoader builds a loader against the Polygon REST API.
func NewPolygonBarsLoader(apiKey string) *PolygonBarsLoader {
	return &PolygonBarsLoader{client: polygon.New(apiKey)}
}

// Load implements Loader.
func (l *PolygonBarsLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	params := models.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   models.Day,
	}.WithOrder(models.Asc)

	iter := l.client.ListAggs(ctx, params)

	series := bar.NewTimeSeries(symbol)
	for iter.Next() {
		agg := iter.Item()
		b, err := bar.New(
			time.Time(agg.Timestamp),
			decimal.NewFromFloat(agg.Open),
			decimal.NewFromFloat(agg.High),
			decimal.NewFromFloat(agg.Low),
			decimal.NewFromFloat(agg.Close),
			decimal.NewFromFloat(agg.Volume),
		)
		if err != nil {
			continue
		}
		series.Add(b)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("marketdata: polygon ListAggs(%s): %w", symbol, err)
	}

	filtered := series.Sub(start, end)
	if filtered.Len() == 0 {
		return nil, fmt.Errorf("%w: %s in [%s,%s]", ErrEmptyRange, symbol, start, end)
	}
	return filtered, nil
}
