// Package bar defines the immutable OHLCV observation and the ordered,
// timestamp-indexed series of bars that the rest of the simulation kernel
// replays against.
package bar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidBar is returned when a Bar fails its own shape invariants
// (low <= open,close <= high, volume >= 0).
var ErrInvalidBar = errors.New("bar: invalid OHLCV shape")

// Bar is a single OHLCV observation. It is immutable once constructed;
// equality between two Bars is defined by Timestamp alone (see Equal).
type Bar struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// New validates and returns a Bar. It is the only constructor; callers
// should never build a Bar struct literal directly outside this package's
// own loaders/tests, since the invariants are not re-checked elsewhere.
func New(ts time.Time, open, high, low, close, volume decimal.Decimal) (Bar, error) {
	b := Bar{Timestamp: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
	if err := b.validate(); err != nil {
		return Bar{}, err
	}
	return b, nil
}

func (b Bar) validate() error {
	if b.Volume.IsNegative() {
		return fmt.Errorf("%w: volume %s is negative", ErrInvalidBar, b.Volume)
	}
	if b.Low.GreaterThan(b.Open) || b.Low.GreaterThan(b.Close) || b.Low.GreaterThan(b.High) {
		return fmt.Errorf("%w: low %s exceeds open/close/high", ErrInvalidBar, b.Low)
	}
	if b.High.LessThan(b.Open) || b.High.LessThan(b.Close) {
		return fmt.Errorf("%w: high %s below open/close", ErrInvalidBar, b.High)
	}
	return nil
}

// Equal compares two bars by timestamp only, per the data-model contract:
// "Equality by timestamp."
func (b Bar) Equal(other Bar) bool {
	return b.Timestamp.Equal(other.Timestamp)
}

// TimeSeries is an ordered sequence of Bars for a single symbol with
// strictly increasing timestamps (duplicate timestamps overwrite, last
// write wins) and O(log n) lookup by timestamp.
type TimeSeries struct {
	symbol string
	bars   []Bar
}

// NewTimeSeries returns an empty series for symbol.
func NewTimeSeries(symbol string) *TimeSeries {
	return &TimeSeries{symbol: symbol}
}

// Symbol returns the series' symbol.
func (ts *TimeSeries) Symbol() string { return ts.symbol }

// Len returns the number of bars held.
func (ts *TimeSeries) Len() int { return len(ts.bars) }

// Add appends or overwrites a bar, preserving ascending timestamp order.
// A bar older than the last one is inserted at the correct position; a bar
// with a timestamp equal to an existing one overwrites it (last write wins).
func (ts *TimeSeries) Add(b Bar) {
	n := len(ts.bars)
	if n == 0 || b.Timestamp.After(ts.bars[n-1].Timestamp) {
		ts.bars = append(ts.bars, b)
		return
	}
	i := sort.Search(n, func(i int) bool { return !ts.bars[i].Timestamp.Before(b.Timestamp) })
	if i < n && ts.bars[i].Timestamp.Equal(b.Timestamp) {
		ts.bars[i] = b
		return
	}
	ts.bars = append(ts.bars, Bar{})
	copy(ts.bars[i+1:], ts.bars[i:])
	ts.bars[i] = b
}

// Get returns the bar at index i.
func (ts *TimeSeries) Get(i int) (Bar, bool) {
	if i < 0 || i >= len(ts.bars) {
		return Bar{}, false
	}
	return ts.bars[i], true
}

// At returns the bar whose timestamp equals ts, via binary search.
func (ts *TimeSeries) At(t time.Time) (Bar, bool) {
	n := len(ts.bars)
	i := sort.Search(n, func(i int) bool { return !ts.bars[i].Timestamp.Before(t) })
	if i < n && ts.bars[i].Timestamp.Equal(t) {
		return ts.bars[i], true
	}
	return Bar{}, false
}

// First returns the earliest bar.
func (ts *TimeSeries) First() (Bar, bool) {
	if len(ts.bars) == 0 {
		return Bar{}, false
	}
	return ts.bars[0], true
}

// Last returns the most recent bar.
func (ts *TimeSeries) Last() (Bar, bool) {
	n := len(ts.bars)
	if n == 0 {
		return Bar{}, false
	}
	return ts.bars[n-1], true
}

// All returns the bars in chronological order. Callers must not mutate the
// returned slice.
func (ts *TimeSeries) All() []Bar { return ts.bars }

// ClosePrices returns the full close-price series in chronological order.
func (ts *TimeSeries) ClosePrices() []decimal.Decimal {
	out := make([]decimal.Decimal, len(ts.bars))
	for i, b := range ts.bars {
		out[i] = b.Close
	}
	return out
}

// ClosePricesLastN returns the last n close prices (or fewer, if the series
// is shorter than n).
func (ts *TimeSeries) ClosePricesLastN(n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	start := len(ts.bars) - n
	if start < 0 {
		start = 0
	}
	return ts.ClosePrices()[start:]
}

// Sub returns a new TimeSeries containing bars with start <= timestamp <= end
// (both inclusive).
func (ts *TimeSeries) Sub(start, end time.Time) *TimeSeries {
	out := NewTimeSeries(ts.symbol)
	lo := sort.Search(len(ts.bars), func(i int) bool { return !ts.bars[i].Timestamp.Before(start) })
	for i := lo; i < len(ts.bars); i++ {
		if ts.bars[i].Timestamp.After(end) {
			break
		}
		out.bars = append(out.bars, ts.bars[i])
	}
	return out
}

// Timestamps returns every bar timestamp in chronological order.
func (ts *TimeSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(ts.bars))
	for i, b := range ts.bars {
		out[i] = b.Timestamp
	}
	return out
}
