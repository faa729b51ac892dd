package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"carsensor-mirror/models"
	"carsensor-mirror/utils"
)

// InsightService renders the catalog facet summary as a terminal report.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Print writes the report for r to w.
func (s *InsightService) Print(w io.Writer, r *models.FacetSummary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  CARSENSOR MIRROR SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings stored : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  Brands          : \033[1m%d\033[0m\n", len(r.Brands))
	if r.YearMin > 0 {
		fmt.Fprintf(w, "  Model years     : %d – %d\n", r.YearMin, r.YearMax)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics (yen)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Total > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m¥%s\033[0m\n", groupDigits(int64(r.AveragePrice+0.5)))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m¥%s\033[0m\n", groupDigits(r.PriceMin))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m¥%s\033[0m\n", groupDigits(r.PriceMax))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Top Brands\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopBrands) == 0 {
		fmt.Fprintf(w, "  No brand data\n")
	} else {
		for i, b := range r.TopBrands {
			bar := strings.Repeat("█", b.Count)
			fmt.Fprintf(w, "  \033[1m%2d.\033[0m %-20s %s (%d)\n", i+1, truncate(b.Brand, 18), truncate(bar, 30), b.Count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Models by Brand\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	brands := make([]string, 0, len(r.ModelsByBrand))
	for b := range r.ModelsByBrand {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	for _, b := range brands {
		fmt.Fprintf(w, "  %-20s %s\n", truncate(b, 18), truncate(strings.Join(r.ModelsByBrand[b], ", "), 60))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// groupDigits formats 2719000 as 2,719,000.
func groupDigits(n int64) string {
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
