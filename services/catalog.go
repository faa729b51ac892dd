package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/storage"
	"carsensor-mirror/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrUnavailable means the dataset was stale and could not be refreshed.
var ErrUnavailable = errors.New("catalog temporarily unavailable")

// Refresher brings the dataset back within its TTL if needed.
type Refresher interface {
	EnsureFresh(ctx context.Context, ttl time.Duration) error
}

// Catalog answers read queries, refreshing the mirror first when it is stale.
type Catalog struct {
	reader    storage.CatalogReader
	refresher Refresher
	ttl       time.Duration
	logger    *utils.Logger
}

// NewCatalog creates a Catalog. A nil refresher serves whatever is stored.
func NewCatalog(reader storage.CatalogReader, refresher Refresher, ttl time.Duration, logger *utils.Logger) *Catalog {
	return &Catalog{reader: reader, refresher: refresher, ttl: ttl, logger: logger}
}

// EnsureFresh refreshes the dataset if it is older than the catalog TTL.
func (c *Catalog) EnsureFresh(ctx context.Context) error {
	if c.refresher == nil {
		return nil
	}
	if err := c.refresher.EnsureFresh(ctx, c.ttl); err != nil {
		c.logger.Error("[catalog] Refresh before read failed: %v", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// ListRecords returns one page of listings. page below 1 becomes 1, pageSize
// is clamped to 1..100 with 20 as the default, an unknown sort field falls
// back to created_at and any direction other than ASC sorts descending.
func (c *Catalog) ListRecords(ctx context.Context, filter models.ListFilter, page, pageSize int, sortField, sortDirection string) (*models.Page, error) {
	if err := c.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	q := models.ListQuery{
		Filter:    filter,
		Page:      page,
		Limit:     pageSize,
		SortField: normalizeSortField(sortField),
		SortDesc:  !strings.EqualFold(strings.TrimSpace(sortDirection), "ASC"),
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}

	records, total, err := c.reader.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.Listing{}
	}

	return &models.Page{
		Records:    records,
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
		Limit:      q.Limit,
	}, nil
}

// GetByID returns storage.ErrNotFound when no listing has the id.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	if err := c.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return c.reader.GetByID(ctx, id)
}

// FacetSummary returns the filter facets and store-wide stats.
func (c *Catalog) FacetSummary(ctx context.Context) (*models.FacetSummary, error) {
	if err := c.EnsureFresh(ctx); err != nil {
		return nil, err
	}
	return c.reader.Facets(ctx)
}

// normalizeSortField accepts both column names and their camelCase API
// spelling, e.g. createdAt.
func normalizeSortField(field string) string {
	field = strings.TrimSpace(field)
	var b strings.Builder
	for _, r := range field {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	if col, ok := storage.SortColumn(b.String()); ok {
		return col
	}
	return "created_at"
}
