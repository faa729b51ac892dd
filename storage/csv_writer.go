package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"carsensor-mirror/models"
)

var csvHeader = []string{
	"run_id", "external_id", "brand", "model", "year", "price", "mileage", "color",
	"transmission", "fuel_type", "body_type", "location", "url", "image_url", "scraped_at",
}

// CSVWriter appends every run's raw candidates to one CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter opens (or creates) the CSV file at the given path and writes
// the header row when the file is new. Intermediate directories are created.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends the candidates of one run.
func (c *CSVWriter) WriteRaw(runID string, listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		scraped := ""
		if l.LastScrapedAt != nil {
			scraped = l.LastScrapedAt.Format(time.RFC3339)
		}
		row := []string{
			runID,
			l.ExternalID,
			l.Brand,
			l.Model,
			strconv.Itoa(l.Year),
			strconv.FormatInt(l.Price, 10),
			strconv.Itoa(l.Mileage),
			l.Color,
			l.Transmission,
			l.FuelType,
			l.BodyType,
			l.Location,
			l.URL,
			l.Image(),
			scraped,
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
