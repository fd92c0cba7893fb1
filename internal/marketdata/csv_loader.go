package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketsim/internal/bar"
)

// defaultTimestampFormat is the §6.1 convention: "yyyy-MM-dd HH:mm:ss".
const defaultTimestampFormat = "2006-01-02 15:04:05"

// CSVLoader reads one OHLCV CSV file per symbol from a directory. Required
// columns are datetime, open, high, low, close; volume is optional and
// defaults to 0. Header matching is case-insensitive, extra columns are
// ignored, and malformed rows are skipped with a diagnostic rather than
// aborting the whole load — this mirrors the source's own loadCSV, widened
// to the header/format conventions §6.1 specifies.
type CSVLoader struct {
	Dir             string
	TimestampFormat string
	diagnostic      func(row int, reason string)
}

// NewCSVLoader returns a loader rooted at dir, expecting files named
// "<symbol>.csv". diagnostic may be nil, in which case malformed rows are
// silently skipped.
func NewCSVLoader(dir string, diagnostic func(row int, reason string)) *CSVLoader {
	return &CSVLoader{Dir: dir, TimestampFormat: defaultTimestampFormat, diagnostic: diagnostic}
}

// Load implements Loader.
func (l *CSVLoader) Load(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	path := fmt.Sprintf("%s/%s.csv", strings.TrimRight(l.Dir, "/"), symbol)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSymbolNotFound, symbol, err)
	}
	defer f.Close()

	series, err := l.parse(symbol, f)
	if err != nil {
		return nil, err
	}

	filtered := series.Sub(start, end)
	if filtered.Len() == 0 {
		return nil, fmt.Errorf("%w: %s in [%s,%s]", ErrEmptyRange, symbol, start, end)
	}
	return filtered, nil
}

func (l *CSVLoader) parse(symbol string, r io.Reader) (*bar.TimeSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	series := bar.NewTimeSeries(symbol)
	var headers []string
	rowIdx := 0

	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("marketdata: reading %s: %w", symbol, err)
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		rowIdx++

		row := make(map[string]string, len(headers))
		for i, h := range headers {
			key := strings.ToLower(strings.TrimSpace(h))
			if i < len(rec) {
				row[key] = strings.TrimSpace(rec[i])
			}
		}

		b, ok := l.parseRow(row)
		if !ok {
			l.diag(rowIdx, "malformed row")
			continue
		}
		series.Add(b)
	}
	return series, nil
}

func (l *CSVLoader) parseRow(row map[string]string) (bar.Bar, bool) {
	ts := first(row, "datetime", "timestamp", "time")
	openS := first(row, "open")
	highS := first(row, "high")
	lowS := first(row, "low")
	closeS := first(row, "close")
	volS := first(row, "volume", "vol")

	if ts == "" || openS == "" || highS == "" || lowS == "" || closeS == "" {
		return bar.Bar{}, false
	}

	t, err := l.parseTimestamp(ts)
	if err != nil {
		return bar.Bar{}, false
	}
	open, err1 := decimal.NewFromString(openS)
	high, err2 := decimal.NewFromString(highS)
	low, err3 := decimal.NewFromString(lowS)
	cls, err4 := decimal.NewFromString(closeS)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return bar.Bar{}, false
	}
	volume := decimal.Zero
	if volS != "" {
		v, err := decimal.NewFromString(volS)
		if err != nil {
			return bar.Bar{}, false
		}
		volume = v
	}

	b, err := bar.New(t, open, high, low, cls, volume)
	if err != nil {
		return bar.Bar{}, false
	}
	return b, true
}

func (l *CSVLoader) parseTimestamp(s string) (time.Time, error) {
	format := l.TimestampFormat
	if format == "" {
		format = defaultTimestampFormat
	}
	if t, err := time.Parse(format, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("marketdata: unrecognized timestamp %q", s)
}

func (l *CSVLoader) diag(row int, reason string) {
	if l.diagnostic != nil {
		l.diagnostic(row, reason)
	}
}

func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
