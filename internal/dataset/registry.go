// Package dataset catalogues historical OHLCV CSV files so a backtest or
// sweep run can be traced back to the exact bytes it ran against. It is a
// thin convenience layer on top of marketdata.CSVLoader: the registry never
// reads bars itself, it only fingerprints files and remembers where they
// live.
package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketsim/internal/bar"
	"marketsim/internal/marketdata"
	"marketsim/internal/telemetry"
)

const schemaVer = "ohlcv_v1"
const catalogFile = "catalog.json"

// Dataset describes one catalogued symbol file.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Source      string    `json:"source"`
	Dir         string    `json:"dir"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Hash        string    `json:"hash"`
	SchemaVer   string    `json:"schema_ver"`
	CreatedAt   time.Time `json:"created_at"`
	RecordCount int       `json:"record_count"`
}

// Registry is a thread-safe catalogue of Datasets persisted as JSON under
// catalogDir.
type Registry struct {
	mu         sync.RWMutex
	catalogDir string
	datasets   map[string]Dataset
}

// Open loads (or creates) a Registry backed by catalogDir.
func Open(catalogDir string) (*Registry, error) {
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return nil, fmt.Errorf("dataset.Open: mkdir %q: %w", catalogDir, err)
	}
	r := &Registry{catalogDir: catalogDir, datasets: make(map[string]Dataset)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register fingerprints the symbol's CSV file under d.Dir, assigns a UUID,
// and persists the entry. Registering the same Name twice is rejected, since
// the catalogue is meant to give each reproducible run a single identity.
func (r *Registry) Register(d Dataset) (Dataset, error) {
	if d.Name == "" || d.Symbol == "" || d.Dir == "" {
		return Dataset{}, fmt.Errorf("dataset.Register: name, symbol, and dir are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.datasets {
		if existing.Name == d.Name {
			return Dataset{}, fmt.Errorf("dataset.Register: name %q already registered (id=%s)", d.Name, existing.ID)
		}
	}

	path := filepath.Join(d.Dir, d.Symbol+".csv")
	hash, count, err := hashAndCount(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset.Register: %q: %w", path, err)
	}

	d.ID = uuid.New().String()
	d.Hash = hash
	d.RecordCount = count
	d.SchemaVer = schemaVer
	d.CreatedAt = time.Now().UTC()
	if d.Source == "" {
		d.Source = "csv"
	}

	r.datasets[d.ID] = d
	if err := r.save(); err != nil {
		delete(r.datasets, d.ID)
		return Dataset{}, fmt.Errorf("dataset.Register: persist: %w", err)
	}

	telemetry.LogEvent(context.Background(), "info", "dataset_registered", map[string]any{
		"id": d.ID, "symbol": d.Symbol, "records": d.RecordCount, "hash": d.Hash[:12],
	})
	return d, nil
}

// Get returns the Dataset with the given ID.
func (r *Registry) Get(id string) (Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset.Get: id %q not found", id)
	}
	return d, nil
}

// List returns all Datasets ordered by CreatedAt ascending.
func (r *Registry) List() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dataset) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Remove deletes a catalogue entry. It does not touch the underlying file.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[id]; !ok {
		return fmt.Errorf("dataset.Remove: id %q not found", id)
	}
	delete(r.datasets, id)
	return r.save()
}

// VerifyHash re-fingerprints the backing file and reports whether it still
// matches the hash recorded at registration — a changed file would silently
// break run-to-run reproducibility otherwise.
func (r *Registry) VerifyHash(id string) error {
	d, err := r.Get(id)
	if err != nil {
		return err
	}
	path := filepath.Join(d.Dir, d.Symbol+".csv")
	hash, _, err := hashAndCount(path)
	if err != nil {
		return fmt.Errorf("dataset.VerifyHash: %w", err)
	}
	if hash != d.Hash {
		return fmt.Errorf("dataset.VerifyHash: id=%s content changed (registered=%s current=%s)",
			id, d.Hash[:12], hash[:12])
	}
	return nil
}

// Load reads the registered dataset's bars for [d.StartDate, d.EndDate]
// through a fresh marketdata.CSVLoader rooted at d.Dir. Hash is not
// re-verified here; call VerifyHash first where strict reproducibility
// matters.
func (r *Registry) Load(ctx context.Context, id string) (*bar.TimeSeries, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	loader := marketdata.NewCSVLoader(d.Dir, nil)
	return loader.Load(ctx, d.Symbol, d.StartDate, d.EndDate)
}

func (r *Registry) catalogPath() string { return filepath.Join(r.catalogDir, catalogFile) }

func (r *Registry) load() error {
	path := r.catalogPath()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dataset: open catalog %q: %w", path, err)
	}
	defer f.Close()

	var list []Dataset
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return fmt.Errorf("dataset: decode catalog: %w", err)
	}
	for _, d := range list {
		r.datasets[d.ID] = d
	}
	return nil
}

func (r *Registry) save() error {
	list := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b Dataset) int { return a.CreatedAt.Compare(b.CreatedAt) })

	tmp := r.catalogPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dataset: create catalog tmp: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dataset: encode catalog: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, r.catalogPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dataset: rename catalog: %w", err)
	}
	return nil
}

func hashAndCount(path string) (hash string, count int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	r := csv.NewReader(io.TeeReader(f, h))
	if _, err := r.Read(); err != nil {
		return "", 0, fmt.Errorf("read CSV header: %w", err)
	}
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}
		count++
	}
	return hex.EncodeToString(h.Sum(nil)), count, nil
}
