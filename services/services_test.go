package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"carsensor-mirror/models"
	"carsensor-mirror/storage"
	"carsensor-mirror/utils"
)

var baseTime = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func memStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite", "file::memory:?_time_format=sqlite")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func candidate(id string, price int64) *models.Listing {
	img := "https://ccsrpcma.carsensor.net/CSphoto/" + id + "_002L.JPG"
	return &models.Listing{
		ExternalID:   id,
		Brand:        "Toyota",
		Model:        "Aqua 1.0 X",
		Year:         2024,
		Price:        price,
		Color:        "Black",
		Mileage:      5,
		Transmission: "CVT",
		FuelType:     "Hybrid",
		BodyType:     "Sedan",
		Location:     "神奈川県",
		Description:  "禁煙車",
		URL:          "https://www.carsensor.net/usedcar/detail/" + id + "/index.html",
		ImageURL:     &img,
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestUpsertIdempotent(t *testing.T) {
	store := memStore(t)
	clk := &clock{t: baseTime}
	u := NewUpserter(store, newTestLogger()).WithClock(clk.now)
	ctx := context.Background()

	first := u.UpsertBatch(ctx, []*models.Listing{candidate("AU1", 1909000), candidate("AU2", 2719000)})
	if first.Added != 2 || first.Updated != 0 || first.Unchanged != 0 {
		t.Fatalf("first batch = %+v", first)
	}

	clk.advance(time.Hour)
	second := u.UpsertBatch(ctx, []*models.Listing{candidate("AU1", 1909000), candidate("AU2", 2719000)})
	if second.Added != 0 || second.Updated != 0 || second.Unchanged != 2 {
		t.Fatalf("second batch = %+v", second)
	}

	got, err := store.FindByExternalID(ctx, "AU1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.CachedAt.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("cached_at not touched: %v", got.CachedAt)
	}
	if !got.UpdatedAt.Equal(baseTime) {
		t.Errorf("touch must not bump updated_at: %v", got.UpdatedAt)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("store holds %d listings, want 2", n)
	}
}

func TestUpsertDetectsPriceChange(t *testing.T) {
	store := memStore(t)
	clk := &clock{t: baseTime}
	u := NewUpserter(store, newTestLogger()).WithClock(clk.now)
	ctx := context.Background()

	if out, err := u.UpsertOne(ctx, candidate("AU1", 1909000)); err != nil || out != Created {
		t.Fatalf("first upsert = %v, %v", out, err)
	}

	clk.advance(time.Minute)
	out, err := u.UpsertOne(ctx, candidate("AU1", 1850000))
	if err != nil || out != Updated {
		t.Fatalf("second upsert = %v, %v; want updated", out, err)
	}

	got, _ := store.FindByExternalID(ctx, "AU1")
	if got.Price != 1850000 || !got.UpdatedAt.Equal(clk.t) {
		t.Errorf("price %d, updated_at %v", got.Price, got.UpdatedAt)
	}
}

func TestUpsertKeepsImageWhenCandidateHasNone(t *testing.T) {
	store := memStore(t)
	u := NewUpserter(store, newTestLogger()).WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	_, _ = u.UpsertOne(ctx, candidate("AU1", 1909000))

	noImage := candidate("AU1", 1909000)
	noImage.ImageURL = nil
	out, err := u.UpsertOne(ctx, noImage)
	if err != nil || out != Unchanged {
		t.Fatalf("upsert = %v, %v; want unchanged", out, err)
	}
	got, _ := store.FindByExternalID(ctx, "AU1")
	if got.ImageURL == nil {
		t.Error("stored image was cleared")
	}
}

func TestNormalizeValue(t *testing.T) {
	img := " https://x/y.jpg "
	var nilImg *string

	tests := []struct {
		a, b any
		same bool
	}{
		{"2300000.00", int64(2300000), true},
		{"2300000", 2300000, true},
		{" Toyota ", "Toyota", true},
		{nil, "", true},
		{nilImg, "", true},
		{&img, "https://x/y.jpg", true},
		{"1.5", "1.50", true},
		{"2300000.01", int64(2300000), false},
		{"Aqua", "aqua", false},
	}
	for _, tt := range tests {
		if got := normalizeValue(tt.a) == normalizeValue(tt.b); got != tt.same {
			t.Errorf("normalizeValue(%#v) vs (%#v): equal=%v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}

func TestUpsertBatchIsolatesFailures(t *testing.T) {
	store := memStore(t)
	u := NewUpserter(store, newTestLogger()).WithClock(func() time.Time { return baseTime })

	batch := []*models.Listing{
		candidate("AU1", 1000000),
		candidate("AU2", 2000000),
		candidate("AU3", 0), // rejected by the price check constraint
		candidate("AU4", 4000000),
		candidate("AU5", 5000000),
	}

	res := u.UpsertBatch(context.Background(), batch)
	if res.Added != 4 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v; want 4 added and 1 error", res)
	}
	if res.Errors[0].ExternalID != "AU3" || res.Errors[0].Error == "" {
		t.Errorf("error entry = %+v", res.Errors[0])
	}
	if total := res.Added + res.Updated + res.Unchanged + len(res.Errors); total != len(batch) {
		t.Errorf("outcomes cover %d of %d candidates", total, len(batch))
	}
}

func TestCacheValidityTTLBoundary(t *testing.T) {
	store := memStore(t)
	clk := &clock{t: baseTime}
	cache := NewCacheManager(store, newTestLogger()).WithClock(clk.now)
	ctx := context.Background()

	if ok, err := cache.IsValid(ctx, time.Minute); err != nil || ok {
		t.Fatalf("empty store: valid=%v err=%v; want invalid", ok, err)
	}

	if _, err := cache.Refresh(ctx, []*models.Listing{candidate("AU1", 1909000)}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ok, _ := cache.IsValid(ctx, time.Minute); !ok {
		t.Error("just refreshed: want valid")
	}

	clk.advance(2 * time.Minute)
	if ok, _ := cache.IsValid(ctx, time.Minute); ok {
		t.Error("cached two minutes ago with a one minute TTL: want invalid")
	}
	if ok, _ := cache.IsValid(ctx, 60*time.Minute); !ok {
		t.Error("within a 60 minute TTL: want valid")
	}
}

func TestCacheMissNamesEmptyOrStale(t *testing.T) {
	store := memStore(t)
	clk := &clock{t: baseTime}
	var buf bytes.Buffer
	logger := utils.NewLoggerTo(&buf)
	logger.SetDebug(true)
	cache := NewCacheManager(store, logger).WithClock(clk.now)
	ctx := context.Background()

	if ok, _ := cache.IsValid(ctx, time.Minute); ok {
		t.Fatal("empty store: want invalid")
	}
	if !strings.Contains(buf.String(), "Store is empty") {
		t.Errorf("empty miss not logged: %q", buf.String())
	}

	if _, err := cache.Refresh(ctx, []*models.Listing{candidate("AU1", 1909000), candidate("AU2", 2719000)}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	buf.Reset()
	clk.advance(2 * time.Minute)
	if ok, _ := cache.IsValid(ctx, time.Minute); ok {
		t.Fatal("stale store: want invalid")
	}
	if !strings.Contains(buf.String(), "All 2 listings are older than 1m0s") {
		t.Errorf("stale miss not logged: %q", buf.String())
	}
}

func TestCacheRefreshKeepsLaterDuplicate(t *testing.T) {
	store := memStore(t)
	cache := NewCacheManager(store, newTestLogger()).WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	n, err := cache.Refresh(ctx, []*models.Listing{
		candidate("AU1", 1000000),
		candidate("AU2", 2000000),
		candidate("AU1", 1100000),
	})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d, want 2", n)
	}
	got, _ := store.FindByExternalID(ctx, "AU1")
	if got.Price != 1100000 {
		t.Errorf("price = %d; want the later candidate's 1100000", got.Price)
	}
	if got.CachedAt == nil || !got.CachedAt.Equal(baseTime) || !got.LastScrapedAt.Equal(baseTime) {
		t.Errorf("stamps = %v / %v", got.CachedAt, got.LastScrapedAt)
	}
}

func TestCacheRefreshReplacesAndRollsBack(t *testing.T) {
	store := memStore(t)
	cache := NewCacheManager(store, newTestLogger()).WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	if _, err := cache.Refresh(ctx, []*models.Listing{candidate("OLD1", 1), candidate("OLD2", 2)}); err != nil {
		t.Fatal(err)
	}

	_, err := cache.Refresh(ctx, []*models.Listing{candidate("NEW1", 100), candidate("BAD", 0)})
	var perr *storage.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if _, err := store.FindByExternalID(ctx, "OLD1"); err != nil {
		t.Errorf("previous dataset lost after failed refresh: %v", err)
	}

	if _, err := cache.Refresh(ctx, []*models.Listing{candidate("NEW1", 100)}); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("store holds %d listings after refresh, want 1", n)
	}
}

// staleRefresher fails every refresh.
type staleRefresher struct{ calls int }

func (r *staleRefresher) EnsureFresh(context.Context, time.Duration) error {
	r.calls++
	return errors.New("upstream unreachable")
}

func TestCatalogListClampsInput(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	cache := NewCacheManager(store, newTestLogger()).WithClock(func() time.Time { return baseTime })

	var batch []*models.Listing
	for i := 1; i <= 25; i++ {
		batch = append(batch, candidate("AU"+string(rune('A'+i)), int64(i)*100000))
	}
	if _, err := cache.Refresh(ctx, batch); err != nil {
		t.Fatal(err)
	}

	c := NewCatalog(store, nil, time.Hour, newTestLogger())

	tests := []struct {
		name                string
		page, size          int
		sort, dir           string
		wantPage, wantLimit int
		wantLen, wantPages  int
		wantFirstPrice      int64
	}{
		{"defaults", 0, 0, "", "", 1, 20, 20, 2, 0},
		{"oversized page", 1, 500, "price", "asc", 1, 100, 25, 1, 100000},
		{"second page", 2, 10, "price", "DESC", 2, 10, 10, 3, 1500000},
		{"mileage sort", 1, 5, "mileage", "ASC", 1, 5, 5, 5, 0},
		{"past the end", 9, 10, "price", "ASC", 9, 10, 0, 3, 0},
	}
	for _, tt := range tests {
		p, err := c.ListRecords(ctx, models.ListFilter{}, tt.page, tt.size, tt.sort, tt.dir)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if p.Page != tt.wantPage || p.Limit != tt.wantLimit || len(p.Records) != tt.wantLen || p.TotalPages != tt.wantPages || p.Total != 25 {
			t.Errorf("%s: page=%d limit=%d len=%d pages=%d total=%d", tt.name, p.Page, p.Limit, len(p.Records), p.TotalPages, p.Total)
		}
		if tt.wantFirstPrice > 0 && len(p.Records) > 0 && p.Records[0].Price != tt.wantFirstPrice {
			t.Errorf("%s: first price %d, want %d", tt.name, p.Records[0].Price, tt.wantFirstPrice)
		}
	}
}

func TestCatalogUnavailable(t *testing.T) {
	store := memStore(t)
	r := &staleRefresher{}
	c := NewCatalog(store, r, time.Hour, newTestLogger())
	ctx := context.Background()

	if _, err := c.ListRecords(ctx, models.ListFilter{}, 1, 20, "", ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ListRecords: %v", err)
	}
	if _, err := c.GetByID(ctx, 1); !errors.Is(err, ErrUnavailable) {
		t.Errorf("GetByID: %v", err)
	}
	if _, err := c.FacetSummary(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("FacetSummary: %v", err)
	}
	if r.calls != 3 {
		t.Errorf("refresher called %d times, want 3", r.calls)
	}
}

func TestNormalizeSortField(t *testing.T) {
	tests := map[string]string{
		"createdAt":  "created_at",
		"created_at": "created_at",
		"updatedAt":  "updated_at",
		"price":      "price",
		"id; DROP":   "created_at",
		"":           "created_at",
	}
	for in, want := range tests {
		if got := normalizeSortField(in); got != want {
			t.Errorf("normalizeSortField(%q) = %q; want %q", in, got, want)
		}
	}
}
