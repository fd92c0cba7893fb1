// Package marketdata implements C6: a per-symbol cache in front of a
// pluggable historical-bar Loader, plus concrete Loader implementations
// (CSV file, Alpaca, Polygon).
package marketdata

import (
	"context"
	"errors"
	"time"

	"marketsim/internal/bar"
)

// ErrSymbolNotFound is returned by a Loader when it has no data for a
// requested symbol at all (as opposed to an empty result within range).
var ErrSymbolNotFound = errors.New("marketdata: symbol not found")

// ErrEmptyRange is returned when a loaded series has no bars intersecting
// the requested [start,end] range.
var ErrEmptyRange = errors.New("marketdata: no bars in requested range")

// Loader is the external market-data collaborator (§6.1): given a symbol
// and an inclusive time range, return a TimeSeries of ascending bars
// intersecting that range, or a fatal error. The core never assumes
// anything about how a Loader is implemented.
type Loader interface {
	Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error)
}
