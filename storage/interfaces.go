package storage

import (
	"context"
	"time"

	"carsensor-mirror/models"
)

// ListingStore is the persistence surface the cache and upsert paths consume.
type ListingStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.Listing, error)
	Insert(ctx context.Context, l *models.Listing) (int64, error)
	UpdateByID(ctx context.Context, id int64, l *models.Listing, at time.Time) error
	TouchByID(ctx context.Context, id int64, at time.Time) error
	ReplaceAll(ctx context.Context, listings []*models.Listing) (int, error)
	CountFreshSince(ctx context.Context, since time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// CatalogReader serves the read paths.
type CatalogReader interface {
	List(ctx context.Context, q models.ListQuery) ([]*models.Listing, int, error)
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	Facets(ctx context.Context) (*models.FacetSummary, error)
}

// RunStore persists the run log.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.ScrapingRun) error
	CompleteRun(ctx context.Context, id string, counts models.RunCounts, errorPayload *string, at time.Time) error
	FailRun(ctx context.Context, id string, message string, at time.Time) error
	GetRun(ctx context.Context, id string) (*models.ScrapingRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*models.ScrapingRun, error)
}

// Store is everything the SQL backend provides.
type Store interface {
	ListingStore
	CatalogReader
	RunStore
	Close() error
}

// RawListingWriter persists the unreconciled candidates of a run.
type RawListingWriter interface {
	WriteRaw(runID string, listings []*models.Listing) error
	Close() error
}

// PageArchive keeps a copy of fetched markup under a key and returns where it went.
type PageArchive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}
