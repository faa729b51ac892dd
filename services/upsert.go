package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/storage"
	"carsensor-mirror/utils"
)

// Outcome classifies what an upsert did.
type Outcome int

const (
	Created Outcome = iota
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	}
	return "unknown"
}

// RecordError is one candidate that could not be reconciled.
type RecordError struct {
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
}

// BatchResult tallies a batch upsert. Added+Updated+Unchanged+len(Errors)
// always equals the batch size.
type BatchResult struct {
	Added     int
	Updated   int
	Unchanged int
	Errors    []RecordError
}

// Upserter reconciles candidates against the store one record at a time.
type Upserter struct {
	store  storage.ListingStore
	logger *utils.Logger
	now    func() time.Time
}

// NewUpserter creates an Upserter using the wall clock.
func NewUpserter(store storage.ListingStore, logger *utils.Logger) *Upserter {
	return &Upserter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (u *Upserter) WithClock(now func() time.Time) *Upserter {
	u.now = now
	return u
}

// UpsertOne inserts an unseen listing, fully updates one whose content
// changed, or only refreshes the freshness stamps of an identical one.
func (u *Upserter) UpsertOne(ctx context.Context, candidate *models.Listing) (Outcome, error) {
	now := u.now()

	existing, err := u.store.FindByExternalID(ctx, candidate.ExternalID)
	if errors.Is(err, storage.ErrNotFound) {
		l := *candidate
		l.Stamp(now)
		l.CreatedAt, l.UpdatedAt = now, now
		if _, err := u.store.Insert(ctx, &l); err != nil {
			return Created, err
		}
		return Created, nil
	}
	if err != nil {
		return Unchanged, err
	}

	if changed := diffFields(existing, candidate); len(changed) > 0 {
		u.logger.Debug("[upsert] %s changed: %s", candidate.ExternalID, strings.Join(changed, ", "))
		if err := u.store.UpdateByID(ctx, existing.ID, candidate, now); err != nil {
			return Updated, err
		}
		return Updated, nil
	}

	if err := u.store.TouchByID(ctx, existing.ID, now); err != nil {
		return Unchanged, err
	}
	return Unchanged, nil
}

// UpsertBatch reconciles every candidate. A failing record is captured in
// the result and does not stop the rest of the batch.
func (u *Upserter) UpsertBatch(ctx context.Context, candidates []*models.Listing) BatchResult {
	var res BatchResult

	for _, c := range candidates {
		outcome, err := u.UpsertOne(ctx, c)
		if err != nil {
			u.logger.Error("[upsert] %s failed: %v", c.ExternalID, err)
			res.Errors = append(res.Errors, RecordError{ExternalID: c.ExternalID, Error: err.Error()})
			continue
		}
		switch outcome {
		case Created:
			res.Added++
		case Updated:
			res.Updated++
		case Unchanged:
			res.Unchanged++
		}
	}

	u.logger.Info("[upsert] Batch of %d: %d added, %d updated, %d unchanged, %d errors",
		len(candidates), res.Added, res.Updated, res.Unchanged, len(res.Errors))
	return res
}

// diffFields lists the comparable fields that differ between the stored and
// the candidate listing. A candidate without an image does not count as a
// change, since the stored image is kept in that case.
func diffFields(stored, candidate *models.Listing) []string {
	pairs := []struct {
		name string
		a, b any
	}{
		{"brand", stored.Brand, candidate.Brand},
		{"model", stored.Model, candidate.Model},
		{"year", stored.Year, candidate.Year},
		{"price", stored.Price, candidate.Price},
		{"color", stored.Color, candidate.Color},
		{"mileage", stored.Mileage, candidate.Mileage},
		{"transmission", stored.Transmission, candidate.Transmission},
		{"fuel_type", stored.FuelType, candidate.FuelType},
		{"body_type", stored.BodyType, candidate.BodyType},
		{"location", stored.Location, candidate.Location},
		{"description", stored.Description, candidate.Description},
	}
	if candidate.ImageURL != nil {
		pairs = append(pairs, struct {
			name string
			a, b any
		}{"image_url", stored.ImageURL, candidate.ImageURL})
	}

	var changed []string
	for _, p := range pairs {
		if normalizeValue(p.a) != normalizeValue(p.b) {
			changed = append(changed, p.name)
		}
	}
	return changed
}

// normalizeValue maps a field value to its comparison form: nil becomes "",
// anything that parses as a number is re-formatted so "2300000.00" and
// 2300000 compare equal, and other strings are trimmed.
func normalizeValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case *string:
		if x == nil {
			return ""
		}
		s = *x
	case string:
		s = x
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}

	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}
