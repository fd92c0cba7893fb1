package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeCSV(t *testing.T, dir, symbol string) {
	t.Helper()
	content := "datetime,open,high,low,close,volume\n" +
		"2024-01-01 00:00:00,100,105,99,102,1000\n" +
		"2024-01-02 00:00:00,102,108,101,107,1200\n"
	path := filepath.Join(dir, symbol+".csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
}

func TestRegisterAndGet(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL")

	reg, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d, err := reg.Register(Dataset{
		Name:      "AAPL_2024",
		Symbol:    "AAPL",
		Dir:       dir,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if d.ID == "" {
		t.Fatal("expected a non-empty ID")
	}
	if d.RecordCount != 2 {
		t.Fatalf("expected 2 records, got %d", d.RecordCount)
	}

	got, err := reg.Get(d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Hash != d.Hash {
		t.Fatal("hash mismatch between Register and Get")
	}
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL")

	reg, _ := Open(t.TempDir())
	d := Dataset{Name: "dup", Symbol: "AAPL", Dir: dir}
	if _, err := reg.Register(d); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := reg.Register(d); err == nil {
		t.Fatal("expected duplicate name registration to fail")
	}
}

func TestVerifyHashDetectsMutation(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL")

	reg, _ := Open(t.TempDir())
	d, err := reg.Register(Dataset{Name: "AAPL_2024", Symbol: "AAPL", Dir: dir})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := reg.VerifyHash(d.ID); err != nil {
		t.Fatalf("expected hash to verify immediately after registration: %v", err)
	}

	// mutate the backing file
	path := filepath.Join(dir, "AAPL.csv")
	if err := os.WriteFile(path, []byte("datetime,open,high,low,close,volume\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	if err := reg.VerifyHash(d.ID); err == nil {
		t.Fatal("expected VerifyHash to fail after file mutation")
	}
}

func TestLoadReturnsBarsInRange(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL")

	reg, _ := Open(t.TempDir())
	d, err := reg.Register(Dataset{
		Name:      "AAPL_2024",
		Symbol:    "AAPL",
		Dir:       dir,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	series, err := reg.Load(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("expected 2 bars, got %d", series.Len())
	}
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL")
	catalogDir := t.TempDir()

	reg, _ := Open(catalogDir)
	d, err := reg.Register(Dataset{Name: "AAPL_2024", Symbol: "AAPL", Dir: dir})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	reopened, err := Open(catalogDir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(d.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "AAPL_2024" {
		t.Fatalf("unexpected name after reopen: %q", got.Name)
	}
}
