package models

// ListFilter narrows a listing query. Zero values mean "no constraint".
type ListFilter struct {
	Brand        string
	Model        string
	Color        string
	Transmission string
	FuelType     string
	MinPrice     int64
	MaxPrice     int64
	MinYear      int
	MaxYear      int
	Search       string
}

// ListQuery is a validated, paged listing query.
type ListQuery struct {
	Filter    ListFilter
	Page      int
	Limit     int
	SortField string
	SortDesc  bool
}

// Offset is the number of rows skipped for the query page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page is one page of listings plus paging metadata.
type Page struct {
	Records    []*Listing `json:"cars"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
	Limit      int        `json:"limit"`
}

// BrandCount is a brand with the number of listings carrying it.
type BrandCount struct {
	Brand string `json:"brand" db:"brand"`
	Count int    `json:"count" db:"count"`
}

// FacetSummary holds the distinct values and ranges used to drive filters,
// plus the store-wide totals.
type FacetSummary struct {
	Total         int                 `json:"total"`
	Brands        []string            `json:"brands"`
	Colors        []string            `json:"colors"`
	Transmissions []string            `json:"transmissions"`
	FuelTypes     []string            `json:"fuelTypes"`
	ModelsByBrand map[string][]string `json:"modelsByBrand"`
	PriceMin      int64               `json:"priceMin"`
	PriceMax      int64               `json:"priceMax"`
	YearMin       int                 `json:"yearMin"`
	YearMax       int                 `json:"yearMax"`
	AveragePrice  float64             `json:"averagePrice"`
	TopBrands     []BrandCount        `json:"topBrands"`
}
