package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"carsensor-mirror/models"
)

const insertBatchSize = 50

const listingColumns = `external_id, brand, model, year, price, color, mileage, transmission,
	fuel_type, body_type, location, description, url, image_url,
	last_scraped_at, cached_at, created_at, updated_at`

const listingColumnCount = 18

const selectListing = `SELECT id, ` + listingColumns + ` FROM listings`

// SQLStore persists listings and run logs through database/sql. It runs on
// PostgreSQL (lib/pq or pgx) and on SQLite (modernc).
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// Open connects with the named driver, waits for the database to answer and
// creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}

	attempts := 10
	if driver == "sqlite" {
		// every connection to :memory: is its own database
		db.SetMaxOpenConns(1)
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping failed after retries: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", driver, err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type listingRow struct {
	ID            int64          `db:"id"`
	ExternalID    string         `db:"external_id"`
	Brand         string         `db:"brand"`
	Model         string         `db:"model"`
	Year          int            `db:"year"`
	Price         string         `db:"price"`
	Color         string         `db:"color"`
	Mileage       int            `db:"mileage"`
	Transmission  string         `db:"transmission"`
	FuelType      string         `db:"fuel_type"`
	BodyType      string         `db:"body_type"`
	Location      string         `db:"location"`
	Description   string         `db:"description"`
	URL           string         `db:"url"`
	ImageURL      sql.NullString `db:"image_url"`
	LastScrapedAt sql.NullTime   `db:"last_scraped_at"`
	CachedAt      sql.NullTime   `db:"cached_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *listingRow) toModel() *models.Listing {
	l := &models.Listing{
		ID:           r.ID,
		ExternalID:   r.ExternalID,
		Brand:        r.Brand,
		Model:        r.Model,
		Year:         r.Year,
		Price:        parseDecimal(r.Price),
		Color:        r.Color,
		Mileage:      r.Mileage,
		Transmission: r.Transmission,
		FuelType:     r.FuelType,
		BodyType:     r.BodyType,
		Location:     r.Location,
		Description:  r.Description,
		URL:          r.URL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ImageURL.Valid {
		img := r.ImageURL.String
		l.ImageURL = &img
	}
	if r.LastScrapedAt.Valid {
		t := r.LastScrapedAt.Time
		l.LastScrapedAt = &t
	}
	if r.CachedAt.Valid {
		t := r.CachedAt.Time
		l.CachedAt = &t
	}
	return l
}

// parseDecimal reads NUMERIC values, which come back as "2719000.00" from PostgreSQL.
func parseDecimal(s string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f))
}

// dbTime normalises timestamps so that SQLite's text comparison orders them correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func insertArgs(l *models.Listing) []any {
	return []any{
		l.ExternalID, l.Brand, l.Model, l.Year, l.Price, l.Color, l.Mileage, l.Transmission,
		l.FuelType, l.BodyType, l.Location, l.Description, l.URL, nullString(l.ImageURL),
		nullTime(l.LastScrapedAt), nullTime(l.CachedAt), dbTime(l.CreatedAt), dbTime(l.UpdatedAt),
	}
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

// FindByExternalID returns ErrNotFound when no listing carries the id.
func (s *SQLStore) FindByExternalID(ctx context.Context, externalID string) (*models.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectListing+` WHERE external_id = ?`), externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("find", externalID, err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	var row listingRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectListing+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", strconv.FormatInt(id, 10), err)
	}
	return row.toModel(), nil
}

// Insert stores one listing and returns its generated id.
func (s *SQLStore) Insert(ctx context.Context, l *models.Listing) (int64, error) {
	query := s.db.Rebind(`INSERT INTO listings (` + listingColumns + `) VALUES ` +
		placeholders(listingColumnCount) + ` RETURNING id`)

	var id int64
	if err := s.db.QueryRowxContext(ctx, query, insertArgs(l)...).Scan(&id); err != nil {
		return 0, persistErr("insert", l.ExternalID, err)
	}
	return id, nil
}

// ReplaceAll swaps the whole listing set inside one transaction, so readers
// see either the previous snapshot or the new one.
func (s *SQLStore) ReplaceAll(ctx context.Context, listings []*models.Listing) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, persistErr("replace: begin", "", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings"); err != nil {
		return 0, persistErr("replace: clear", "", err)
	}

	inserted, err := s.insertAll(ctx, tx, listings)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, persistErr("replace: commit", "", err)
	}
	return inserted, nil
}

func (s *SQLStore) insertAll(ctx context.Context, ext sqlx.ExtContext, listings []*models.Listing) (int, error) {
	total := 0
	for i := 0; i < len(listings); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(listings) {
			end = len(listings)
		}
		n, err := s.insertBatch(ctx, ext, listings[i:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLStore) insertBatch(ctx context.Context, ext sqlx.ExtContext, batch []*models.Listing) (int, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*listingColumnCount)

	for _, l := range batch {
		valueStrings = append(valueStrings, placeholders(listingColumnCount))
		valueArgs = append(valueArgs, insertArgs(l)...)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (%s)
		VALUES %s
		ON CONFLICT (external_id) DO NOTHING
	`, listingColumns, strings.Join(valueStrings, ","))

	res, err := ext.ExecContext(ctx, s.db.Rebind(query), valueArgs...)
	if err != nil {
		return 0, persistErr("bulk insert", batch[0].ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(batch), nil
	}
	return int(n), nil
}

// UpdateByID overwrites the descriptive fields and stamps freshness. A nil
// image on l keeps the stored image.
func (s *SQLStore) UpdateByID(ctx context.Context, id int64, l *models.Listing, at time.Time) error {
	query := s.db.Rebind(`
		UPDATE listings SET
			brand = ?, model = ?, year = ?, price = ?, color = ?, mileage = ?,
			transmission = ?, fuel_type = ?, body_type = ?, location = ?, description = ?,
			url = ?, image_url = COALESCE(?, image_url),
			last_scraped_at = ?, cached_at = ?, updated_at = ?
		WHERE id = ?`)

	ts := dbTime(at)
	res, err := s.db.ExecContext(ctx, query,
		l.Brand, l.Model, l.Year, l.Price, l.Color, l.Mileage,
		l.Transmission, l.FuelType, l.BodyType, l.Location, l.Description,
		l.URL, nullString(l.ImageURL),
		ts, ts, ts, id)
	if err != nil {
		return persistErr("update", l.ExternalID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchByID only refreshes the freshness stamps.
func (s *SQLStore) TouchByID(ctx context.Context, id int64, at time.Time) error {
	ts := dbTime(at)
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE listings SET last_scraped_at = ?, cached_at = ? WHERE id = ?`), ts, ts, id)
	if err != nil {
		return persistErr("touch", strconv.FormatInt(id, 10), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountFreshSince counts listings whose cached_at is at or after since.
func (s *SQLStore) CountFreshSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM listings WHERE cached_at IS NOT NULL AND cached_at >= ?`), dbTime(since))
	if err != nil {
		return 0, persistErr("count fresh", "", err)
	}
	return n, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM listings`); err != nil {
		return 0, persistErr("count", "", err)
	}
	return n, nil
}
