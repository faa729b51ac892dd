package storage

import (
	"context"
	"fmt"
)

// Column types differ between PostgreSQL and SQLite, the rest of the DDL is shared.
type dialect struct {
	serial    string
	timestamp string
}

var (
	postgresDialect = dialect{serial: "SERIAL PRIMARY KEY", timestamp: "TIMESTAMPTZ"}
	sqliteDialect   = dialect{serial: "INTEGER PRIMARY KEY AUTOINCREMENT", timestamp: "TIMESTAMP"}
)

func (d dialect) statements() []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS listings (
			id              %[1]s,
			external_id     VARCHAR(64)   UNIQUE NOT NULL,
			brand           TEXT          NOT NULL CHECK (brand <> ''),
			model           TEXT          NOT NULL CHECK (model <> ''),
			year            INTEGER       NOT NULL DEFAULT 0,
			price           NUMERIC(12,2) NOT NULL CHECK (price > 0),
			color           TEXT          NOT NULL DEFAULT '',
			mileage         INTEGER       NOT NULL DEFAULT 0 CHECK (mileage >= 0),
			transmission    TEXT          NOT NULL DEFAULT '',
			fuel_type       TEXT          NOT NULL DEFAULT '',
			body_type       TEXT          NOT NULL DEFAULT '',
			location        TEXT          NOT NULL DEFAULT '',
			description     TEXT          NOT NULL DEFAULT '',
			url             TEXT          NOT NULL DEFAULT '',
			image_url       TEXT,
			last_scraped_at %[2]s,
			cached_at       %[2]s,
			created_at      %[2]s NOT NULL,
			updated_at      %[2]s NOT NULL
		)`, d.serial, d.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_listings_brand     ON listings(brand)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_price     ON listings(price)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_year      ON listings(year)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_cached_at ON listings(cached_at)`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS scraping_runs (
			id            VARCHAR(36) PRIMARY KEY,
			kind          VARCHAR(16) NOT NULL,
			status        VARCHAR(16) NOT NULL,
			found         INTEGER     NOT NULL DEFAULT 0,
			added         INTEGER     NOT NULL DEFAULT 0,
			updated       INTEGER     NOT NULL DEFAULT 0,
			unchanged     INTEGER     NOT NULL DEFAULT 0,
			errored       INTEGER     NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at    %[1]s NOT NULL,
			completed_at  %[1]s
		)`, d.timestamp),
		`CREATE INDEX IF NOT EXISTS idx_scraping_runs_started ON scraping_runs(started_at)`,
	}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	d := postgresDialect
	if s.driver == "sqlite" {
		d = sqliteDialect
	}
	for _, stmt := range d.statements() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
