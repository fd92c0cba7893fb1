package marketdata

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"marketsim/internal/bar"
	"marketsim/internal/telemetry"
)

// BreakerLoader wraps a Loader with a circuit breaker so a repeatedly
// failing upstream (unreachable API, bad file path) fails fast instead of
// retrying expensive I/O on every symbol lookup. A tripped breaker's error
// surfaces as an ordinary Loader error — the Data error taxonomy in §7 does
// not change, this only bounds how long a broken loader is retried against.
type BreakerLoader struct {
	inner  Loader
	cb     *gobreaker.CircuitBreaker[*bar.TimeSeries]
	source string
}

// NewBreakerLoader wraps inner, labeling metrics/logs with source.
func NewBreakerLoader(inner Loader, source string) *BreakerLoader {
	settings := gobreaker.Settings{
		Name:        source,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				telemetry.IncLoaderBreakerTrip(name)
			}
		},
	}
	return &BreakerLoader{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker[*bar.TimeSeries](settings),
		source: source,
	}
}

// Load implements Loader.
func (b *BreakerLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	return b.cb.Execute(func() (*bar.TimeSeries, error) {
		return b.inner.Load(ctx, symbol, start, end)
	})
}
