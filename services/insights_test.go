package services

import (
	"bytes"
	"strings"
	"testing"

	"carsensor-mirror/models"
)

func sampleSummary() *models.FacetSummary {
	return &models.FacetSummary{
		Total:         3,
		Brands:        []string{"Honda", "Toyota"},
		ModelsByBrand: map[string][]string{"Toyota": {"Aqua 1.0 X", "Town Ace Van 1.5 GL 4WD"}, "Honda": {"Civic 1.5 Turbo"}},
		PriceMin:      1909000,
		PriceMax:      2719000,
		AveragePrice:  2331000,
		YearMin:       2023,
		YearMax:       2025,
		TopBrands:     []models.BrandCount{{Brand: "Toyota", Count: 2}, {Brand: "Honda", Count: 1}},
	}
}

func TestInsightPrint(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(newTestLogger()).Print(&buf, sampleSummary())
	out := buf.String()

	for _, want := range []string{"Listings stored : \033[1m3", "¥2,331,000", "¥1,909,000", "2023 – 2025", "Toyota", "Civic 1.5 Turbo"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Index(out, "Aqua 1.0 X") < strings.Index(out, "Civic 1.5 Turbo") {
		t.Error("models should be listed alphabetically by brand")
	}
}

func TestInsightPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(newTestLogger()).Print(&buf, &models.FacetSummary{})
	if !strings.Contains(buf.String(), "No price data available") || !strings.Contains(buf.String(), "No brand data") {
		t.Errorf("unexpected empty report:\n%s", buf.String())
	}
}

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{2719000, "2,719,000"},
		{-12345, "-12,345"},
	}
	for _, tt := range tests {
		if got := groupDigits(tt.in); got != tt.want {
			t.Errorf("groupDigits(%d) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("タウンエースバン 1.5 GL 4WD", 8); got != "タウンエー..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("Aqua", 8); got != "Aqua" {
		t.Errorf("truncate = %q", got)
	}
}
