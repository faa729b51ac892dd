package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carsensor-mirror/models"
)

func TestCSVWriterAppendsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw_listings.csv")
	now := time.Now()

	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("NewCSVWriter: %v", err)
	}
	if err := w.WriteRaw("run-1", []*models.Listing{sampleListing("AU1", "Toyota", "Aqua", 1909000, now)}); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// reopening must not repeat the header
	w, err = NewCSVWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := w.WriteRaw("run-2", []*models.Listing{
		sampleListing("AU2", "Honda", "Civic", 2365000, now),
		sampleListing("AU3", "Honda", "Fit", 990000, now),
	}); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	_ = w.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("rows: got %d, want 4 (header + 3)", len(records))
	}
	if records[0][0] != "run_id" {
		t.Errorf("header: %v", records[0])
	}
	if records[1][0] != "run-1" || records[1][1] != "AU1" || records[1][5] != "1909000" {
		t.Errorf("first row: %v", records[1])
	}
	if records[3][0] != "run-2" || records[3][3] != "Fit" {
		t.Errorf("last row: %v", records[3])
	}
}
