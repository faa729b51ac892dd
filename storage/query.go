package storage

import (
	"context"
	"database/sql"
	"strings"

	"carsensor-mirror/models"
)

// sortColumns whitelists the orderable columns.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"price":      "price",
	"year":       "year",
	"mileage":    "mileage",
	"brand":      "brand",
	"model":      "model",
}

// SortColumn reports the column for a sort field, and whether it is allowed.
func SortColumn(field string) (string, bool) {
	col, ok := sortColumns[field]
	return col, ok
}

func buildListSQL(q models.ListQuery, countOnly bool) (string, []any) {
	base := selectListing
	if countOnly {
		base = `SELECT COUNT(*) FROM listings`
	}

	var where []string
	var args []any
	f := q.Filter

	like := func(col, v string) {
		if v = strings.TrimSpace(v); v != "" {
			where = append(where, "LOWER("+col+") LIKE ?")
			args = append(args, "%"+strings.ToLower(v)+"%")
		}
	}
	like("brand", f.Brand)
	like("model", f.Model)
	like("color", f.Color)

	if v := strings.TrimSpace(f.Transmission); v != "" {
		where = append(where, "transmission = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.FuelType); v != "" {
		where = append(where, "fuel_type = ?")
		args = append(args, v)
	}
	if f.MinPrice > 0 {
		where = append(where, "price >= ?")
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice > 0 {
		where = append(where, "price <= ?")
		args = append(args, f.MaxPrice)
	}
	if f.MinYear > 0 {
		where = append(where, "year >= ?")
		args = append(args, f.MinYear)
	}
	if f.MaxYear > 0 {
		where = append(where, "year <= ?")
		args = append(args, f.MaxYear)
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		kw := "%" + strings.ToLower(v) + "%"
		where = append(where, "(LOWER(brand) LIKE ? OR LOWER(model) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, kw, kw, kw)
	}

	sqlStr := base
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}

	if !countOnly {
		col, ok := sortColumns[q.SortField]
		if !ok {
			col = "created_at"
		}
		dir := "ASC"
		if q.SortDesc {
			dir = "DESC"
		}
		sqlStr += " ORDER BY " + col + " " + dir + ", id " + dir
		sqlStr += " LIMIT ? OFFSET ?"

		limit := q.Limit
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		offset := q.Offset()
		if offset < 0 {
			offset = 0
		}
		args = append(args, limit, offset)
	}

	return sqlStr, args
}

// List returns one page of listings and the total match count.
func (s *SQLStore) List(ctx context.Context, q models.ListQuery) ([]*models.Listing, int, error) {
	countSQL, countArgs := buildListSQL(q, true)
	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countSQL), countArgs...); err != nil {
		return nil, 0, persistErr("list: count", "", err)
	}

	listSQL, listArgs := buildListSQL(q, false)
	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listSQL), listArgs...); err != nil {
		return nil, 0, persistErr("list", "", err)
	}

	out := make([]*models.Listing, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, total, nil
}

func (s *SQLStore) distinct(ctx context.Context, col string) ([]string, error) {
	var vals []string
	err := s.db.SelectContext(ctx, &vals,
		`SELECT DISTINCT `+col+` FROM listings WHERE `+col+` <> '' ORDER BY `+col)
	if err != nil {
		return nil, persistErr("facets: distinct "+col, "", err)
	}
	return vals, nil
}

// Facets aggregates the distinct filter values, ranges and totals.
func (s *SQLStore) Facets(ctx context.Context) (*models.FacetSummary, error) {
	out := &models.FacetSummary{ModelsByBrand: make(map[string][]string)}

	var err error
	if out.Brands, err = s.distinct(ctx, "brand"); err != nil {
		return nil, err
	}
	if out.Colors, err = s.distinct(ctx, "color"); err != nil {
		return nil, err
	}
	if out.Transmissions, err = s.distinct(ctx, "transmission"); err != nil {
		return nil, err
	}
	if out.FuelTypes, err = s.distinct(ctx, "fuel_type"); err != nil {
		return nil, err
	}

	var pairs []struct {
		Brand string `db:"brand"`
		Model string `db:"model"`
	}
	if err := s.db.SelectContext(ctx, &pairs,
		`SELECT DISTINCT brand, model FROM listings ORDER BY brand, model`); err != nil {
		return nil, persistErr("facets: models", "", err)
	}
	for _, p := range pairs {
		out.ModelsByBrand[p.Brand] = append(out.ModelsByBrand[p.Brand], p.Model)
	}

	var agg struct {
		Total    int             `db:"total"`
		PriceMin sql.NullString  `db:"price_min"`
		PriceMax sql.NullString  `db:"price_max"`
		PriceAvg sql.NullFloat64 `db:"price_avg"`
	}
	if err := s.db.GetContext(ctx, &agg, `
		SELECT COUNT(*) AS total, MIN(price) AS price_min, MAX(price) AS price_max, AVG(price) AS price_avg
		FROM listings`); err != nil {
		return nil, persistErr("facets: price", "", err)
	}
	out.Total = agg.Total
	out.PriceMin = parseDecimal(agg.PriceMin.String)
	out.PriceMax = parseDecimal(agg.PriceMax.String)
	if agg.PriceAvg.Valid {
		out.AveragePrice = float64(int64(agg.PriceAvg.Float64*100+0.5)) / 100
	}

	var years struct {
		Min sql.NullInt64 `db:"year_min"`
		Max sql.NullInt64 `db:"year_max"`
	}
	if err := s.db.GetContext(ctx, &years,
		`SELECT MIN(year) AS year_min, MAX(year) AS year_max FROM listings WHERE year > 0`); err != nil {
		return nil, persistErr("facets: year", "", err)
	}
	out.YearMin = int(years.Min.Int64)
	out.YearMax = int(years.Max.Int64)

	if err := s.db.SelectContext(ctx, &out.TopBrands, `
		SELECT brand, COUNT(*) AS count FROM listings
		GROUP BY brand ORDER BY COUNT(*) DESC, brand ASC LIMIT 10`); err != nil {
		return nil, persistErr("facets: top brands", "", err)
	}
	return out, nil
}
