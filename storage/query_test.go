package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"carsensor-mirror/models"
)

func seedCatalog(t *testing.T, s *SQLStore) {
	t.Helper()
	now := time.Now()

	townAce := sampleListing("AU6757636162", "Toyota", "Town Ace Van 1.5 GL 4WD", 2719000, now)
	townAce.Year = 2025
	townAce.BodyType = "Van"
	townAce.Description = "4WD ベッドキット"

	aqua := sampleListing("AU6723842884", "Toyota", "Aqua 1.0 X", 1909000, now)
	aqua.Year = 2024
	aqua.Color = "Black"
	aqua.Transmission = "CVT"
	aqua.FuelType = "Hybrid"

	civic := sampleListing("AU6567192867", "Honda", "Civic 1.5 Turbo", 2365000, now)
	civic.Year = 2023
	civic.Color = "Blue"
	civic.Transmission = "CVT"
	civic.Description = "ターボ バックカメラ"

	unknownYear := sampleListing("AU0000000001", "Suzuki", "Jimny", 1500000, now)
	unknownYear.Year = 0

	if _, err := s.ReplaceAll(context.Background(), []*models.Listing{townAce, aqua, civic, unknownYear}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	s := memStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter models.ListFilter
		want   int
	}{
		{"no filter", models.ListFilter{}, 4},
		{"brand substring case-insensitive", models.ListFilter{Brand: "toy"}, 2},
		{"model substring", models.ListFilter{Model: "civic"}, 1},
		{"color", models.ListFilter{Color: "bla"}, 1},
		{"exact transmission", models.ListFilter{Transmission: "CVT"}, 2},
		{"exact transmission does not match substring", models.ListFilter{Transmission: "CV"}, 0},
		{"fuel type", models.ListFilter{FuelType: "Hybrid"}, 1},
		{"price range", models.ListFilter{MinPrice: 2000000, MaxPrice: 2500000}, 1},
		{"year range", models.ListFilter{MinYear: 2024}, 2},
		{"search across description", models.ListFilter{Search: "ターボ"}, 1},
		{"search across brand", models.ListFilter{Search: "honda"}, 1},
	}

	for _, tt := range tests {
		_, total, err := s.List(ctx, models.ListQuery{Filter: tt.filter, Page: 1, Limit: 20})
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if total != tt.want {
			t.Errorf("%s: total = %d; want %d", tt.name, total, tt.want)
		}
	}
}

func TestListSortAndPaging(t *testing.T) {
	s := memStore(t)
	seedCatalog(t, s)
	ctx := context.Background()

	rows, total, err := s.List(ctx, models.ListQuery{Page: 1, Limit: 2, SortField: "price", SortDesc: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 4 || len(rows) != 2 {
		t.Fatalf("got %d rows of %d", len(rows), total)
	}
	if rows[0].Price != 2719000 || rows[1].Price != 2365000 {
		t.Errorf("descending price order wrong: %d, %d", rows[0].Price, rows[1].Price)
	}

	rows, _, _ = s.List(ctx, models.ListQuery{Page: 2, Limit: 2, SortField: "price"})
	if len(rows) != 2 || rows[0].Price != 2365000 {
		t.Errorf("page 2 ascending: %+v", rows)
	}
}

func TestBuildListSQLIgnoresUnknownSort(t *testing.T) {
	q, _ := buildListSQL(models.ListQuery{Page: 1, Limit: 10, SortField: "price; DROP TABLE listings"}, false)
	if strings.Contains(q, "DROP") {
		t.Fatalf("unsafe sort field reached SQL: %s", q)
	}
	if !strings.Contains(q, "ORDER BY created_at") {
		t.Errorf("expected created_at fallback: %s", q)
	}
}

func TestFacets(t *testing.T) {
	s := memStore(t)
	ctx := context.Background()

	empty, err := s.Facets(ctx)
	if err != nil {
		t.Fatalf("Facets on empty store: %v", err)
	}
	if empty.Total != 0 || empty.PriceMin != 0 || len(empty.Brands) != 0 {
		t.Errorf("empty facets: %+v", empty)
	}

	seedCatalog(t, s)
	f, err := s.Facets(ctx)
	if err != nil {
		t.Fatalf("Facets: %v", err)
	}

	if f.Total != 4 {
		t.Errorf("Total: got %d", f.Total)
	}
	if strings.Join(f.Brands, ",") != "Honda,Suzuki,Toyota" {
		t.Errorf("Brands: %v", f.Brands)
	}
	if strings.Join(f.Transmissions, ",") != "AT,CVT" {
		t.Errorf("Transmissions: %v", f.Transmissions)
	}
	if len(f.ModelsByBrand["Toyota"]) != 2 {
		t.Errorf("Toyota models: %v", f.ModelsByBrand["Toyota"])
	}
	if f.PriceMin != 1500000 || f.PriceMax != 2719000 {
		t.Errorf("price range: %d..%d", f.PriceMin, f.PriceMax)
	}
	if f.YearMin != 2023 || f.YearMax != 2025 {
		t.Errorf("year range should ignore unknown years: %d..%d", f.YearMin, f.YearMax)
	}
	if f.AveragePrice != 2123250 {
		t.Errorf("AveragePrice: got %.2f", f.AveragePrice)
	}
	if len(f.TopBrands) == 0 || f.TopBrands[0].Brand != "Toyota" || f.TopBrands[0].Count != 2 {
		t.Errorf("TopBrands: %+v", f.TopBrands)
	}
}
