package services

import (
	"context"
	"fmt"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/storage"
	"carsensor-mirror/utils"
)

// CacheManager decides whether the mirrored dataset is fresh and performs
// full refreshes.
type CacheManager struct {
	store  storage.ListingStore
	logger *utils.Logger
	now    func() time.Time
}

// NewCacheManager creates a CacheManager using the wall clock.
func NewCacheManager(store storage.ListingStore, logger *utils.Logger) *CacheManager {
	return &CacheManager{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (m *CacheManager) WithClock(now func() time.Time) *CacheManager {
	m.now = now
	return m
}

// IsValid reports whether at least one listing was cached within ttl.
// An empty store is never valid.
func (m *CacheManager) IsValid(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := m.store.CountFreshSince(ctx, m.now().Add(-ttl))
	if err != nil {
		return false, fmt.Errorf("cache validity: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	total, err := m.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("cache validity: %w", err)
	}
	if total == 0 {
		m.logger.Debug("[cache] Store is empty")
	} else {
		m.logger.Debug("[cache] All %d listings are older than %s", total, ttl)
	}
	return false, nil
}

// Refresh replaces the whole dataset with candidates. Duplicate external
// ids are collapsed first, keeping the last one seen. Every record is
// stamped with the same time. The swap is atomic: on error the previous
// dataset is left intact. It returns the number of listings stored.
func (m *CacheManager) Refresh(ctx context.Context, candidates []*models.Listing) (int, error) {
	unique, dupes := Dedupe(candidates)

	now := m.now()
	for _, l := range unique {
		l.Stamp(now)
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.UpdatedAt = now
	}

	inserted, err := m.store.ReplaceAll(ctx, unique)
	if err != nil {
		return 0, fmt.Errorf("cache refresh: %w", err)
	}
	if dupes > 0 {
		m.logger.Info("[cache] Refresh collapsed %d duplicate candidates", dupes)
	}
	m.logger.Info("[cache] Refreshed dataset: %d listings stored", inserted)
	return inserted, nil
}
