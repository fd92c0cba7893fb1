package marketdata

import (
	"context"
	"sync"
	"time"

	"marketsim/internal/bar"
)

// cacheEntry holds the widest series fetched so far for a symbol.
type cacheEntry struct {
	series *bar.TimeSeries
	start  time.Time
	end    time.Time
}

func (e *cacheEntry) covers(start, end time.Time) bool {
	return !e.start.After(start) && !e.end.Before(end)
}

// Service is C6: a per-symbol cache in front of a Loader. Get returns bars
// covering [start,end] inclusive, fetching from the Loader only on a cache
// miss (first lookup for a symbol, or a range wider than what's cached) and
// filtering the cached series otherwise. Reads proceed concurrently; a
// populating write serializes against other accesses to the same cache.
type Service struct {
	loader  Loader
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

// NewService wraps loader with a per-symbol cache.
func NewService(loader Loader) *Service {
	return &Service{
		loader:  loader,
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns bars for symbol intersecting [start,end], inclusive on both
// endpoints, delegating to the Loader on a cache miss.
func (s *Service) Get(ctx context.Context, symbol string, start, end time.Time) (*bar.TimeSeries, error) {
	if series, ok := s.cached(symbol, start, end); ok {
		return series.Sub(start, end), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock: another goroutine may have already
	// populated a wide-enough entry while we waited.
	if e, ok := s.entries[symbol]; ok && e.covers(start, end) {
		return e.series.Sub(start, end), nil
	}

	fetchStart, fetchEnd := start, end
	if e, ok := s.entries[symbol]; ok {
		if e.start.Before(fetchStart) {
			fetchStart = e.start
		}
		if e.end.After(fetchEnd) {
			fetchEnd = e.end
		}
	}

	series, err := s.loader.Load(ctx, symbol, fetchStart, fetchEnd)
	if err != nil {
		return nil, err
	}
	s.entries[symbol] = &cacheEntry{series: series, start: fetchStart, end: fetchEnd}
	return series.Sub(start, end), nil
}

// cached reports whether symbol has a cache entry covering [start,end], and
// returns its backing series if so. Safe for concurrent callers.
func (s *Service) cached(symbol string, start, end time.Time) (*bar.TimeSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[symbol]
	if !ok || !e.covers(start, end) {
		return nil, false
	}
	return e.series, true
}

// Evict drops the cached entry for symbol, forcing the next Get to reload.
func (s *Service) Evict(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, symbol)
}

// Clear drops all cached entries.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheEntry)
}
