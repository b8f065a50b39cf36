// Package duckdb implements the record store on an embedded DuckDB database.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/shopspring/decimal"

	"navpulse/pkg/contracts/domain"
)

var schemaSQL = []string{`
CREATE TABLE IF NOT EXISTS nav_observations (
	scheme_code      VARCHAR NOT NULL,
	scheme_name      VARCHAR,
	date             DATE NOT NULL,
	nav              DECIMAL(18,8) NOT NULL,
	isin_growth      VARCHAR,
	isin_dividend    VARCHAR,
	repurchase_price DECIMAL(18,8),
	sale_price       DECIMAL(18,8),
	updated_at       TIMESTAMP NOT NULL DEFAULT current_timestamp,
	PRIMARY KEY (scheme_code, date)
)`, `
CREATE TABLE IF NOT EXISTS nav_no_data_dates (
	date      DATE PRIMARY KEY,
	marked_at TIMESTAMP NOT NULL DEFAULT current_timestamp
)`, `
CREATE TABLE IF NOT EXISTS schemes (
	scheme_code     VARCHAR PRIMARY KEY,
	scheme_name     VARCHAR,
	first_seen_date DATE NOT NULL,
	last_seen_date  DATE NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT false
)`, `
CREATE TABLE IF NOT EXISTS scheme_metadata (
	scheme_code            VARCHAR PRIMARY KEY,
	scheme_name            VARCHAR NOT NULL,
	amc_name               VARCHAR,
	scheme_type            VARCHAR,
	scheme_category        VARCHAR,
	scheme_nav_name        VARCHAR,
	minimum_amount         DECIMAL(18,2),
	launch_date            DATE,
	closure_date           DATE,
	isin_growth            VARCHAR,
	isin_dividend          VARCHAR,
	first_seen_date        DATE NOT NULL,
	last_seen_date         DATE NOT NULL,
	is_listed              BOOLEAN NOT NULL DEFAULT true,
	attribute_last_updated DATE NOT NULL
)`,
}

const upsertObservationSQL = `
INSERT OR REPLACE INTO nav_observations
	(scheme_code, scheme_name, date, nav, isin_growth, isin_dividend, repurchase_price, sale_price, updated_at)
VALUES
	(?, ?, CAST(? AS DATE), CAST(? AS DECIMAL(18,8)), ?, ?, CAST(? AS DECIMAL(18,8)), CAST(? AS DECIMAL(18,8)), current_timestamp)`

const refreshSchemesSQL = `
INSERT INTO schemes (scheme_code, scheme_name, first_seen_date, last_seen_date, is_active)
SELECT scheme_code, any_value(scheme_name), min(date), max(date), false
FROM nav_observations
WHERE date = CAST(? AS DATE)
GROUP BY scheme_code
ON CONFLICT (scheme_code) DO UPDATE SET
	scheme_name     = COALESCE(NULLIF(excluded.scheme_name, ''), scheme_name),
	first_seen_date = least(first_seen_date, excluded.first_seen_date),
	last_seen_date  = greatest(last_seen_date, excluded.last_seen_date)`

const refreshActiveSQL = `
UPDATE schemes
SET is_active = (last_seen_date = (SELECT max(date) FROM nav_observations))`

// Store is a DuckDB backed record store. Writes are serialized through a
// mutex and each date is written in its own transaction.
type Store struct {
	connector *duckdb.Connector
	db        *sql.DB
	path      string
	writeMu   sync.Mutex
}

// Open opens or creates the database at path. An empty path or ":memory:"
// opens an in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb %q: %w", path, err)
	}
	db := sql.OpenDB(connector)

	for _, stmt := range schemaSQL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			connector.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{connector: connector, db: db, path: path}, nil
}

// DB exposes the connection pool for read-only consumers such as exporters.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database
func (s *Store) Close() error {
	return errors.Join(s.db.Close(), s.connector.Close())
}

// ExistingDates returns the dates in r with observations or a no-data marker.
func (s *Store) ExistingDates(ctx context.Context, r domain.DateRange) (domain.DateSet, error) {
	const q = `
SELECT CAST(d AS VARCHAR) FROM (
	SELECT DISTINCT date AS d FROM nav_observations
	WHERE date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
	UNION
	SELECT date AS d FROM nav_no_data_dates
	WHERE date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)
)`
	from, to := domain.FormatDate(r.Start), domain.FormatDate(r.End)
	rows, err := s.db.QueryContext(ctx, q, from, to, from, to)
	if err != nil {
		return nil, fmt.Errorf("query existing dates: %w", err)
	}
	defer rows.Close()

	out := make(domain.DateSet)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan existing date: %w", err)
		}
		d, err := domain.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		out.Add(d)
	}
	return out, rows.Err()
}

// Upsert replaces the observations of one date in a single transaction and
// refreshes the scheme registry.
func (s *Store) Upsert(ctx context.Context, date time.Time, records []domain.NAVObservation) (n int, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	day := domain.FormatDate(domain.NormalizeDate(date))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertObservationSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err = stmt.ExecContext(ctx,
			rec.SchemeCode,
			nullString(rec.SchemeName),
			domain.FormatDate(domain.NormalizeDate(rec.Date)),
			rec.NAV.String(),
			nullString(rec.ISINGrowth),
			nullString(rec.ISINDividend),
			nullDecimal(rec.RepurchasePrice),
			nullDecimal(rec.SalePrice),
		); err != nil {
			return 0, fmt.Errorf("upsert %s/%s: %w", rec.SchemeCode, day, err)
		}
		n++
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM nav_no_data_dates WHERE date = CAST(? AS DATE)`, day); err != nil {
		return 0, fmt.Errorf("clear no-data marker: %w", err)
	}
	if _, err = tx.ExecContext(ctx, refreshSchemesSQL, day); err != nil {
		return 0, fmt.Errorf("refresh schemes: %w", err)
	}
	if _, err = tx.ExecContext(ctx, refreshActiveSQL); err != nil {
		return 0, fmt.Errorf("refresh active schemes: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", day, err)
	}
	return n, nil
}

// MarkNoData records an explicit no-data marker for date.
func (s *Store) MarkNoData(ctx context.Context, date time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO nav_no_data_dates (date) VALUES (CAST(? AS DATE))`,
		domain.FormatDate(domain.NormalizeDate(date)))
	if err != nil {
		return fmt.Errorf("mark no data: %w", err)
	}
	return nil
}

// Observations returns the observations of date ordered by scheme code.
func (s *Store) Observations(ctx context.Context, date time.Time) ([]domain.NAVObservation, error) {
	const q = `
SELECT scheme_code, COALESCE(scheme_name, ''), CAST(date AS VARCHAR), CAST(nav AS VARCHAR),
	COALESCE(isin_growth, ''), COALESCE(isin_dividend, ''),
	CAST(repurchase_price AS VARCHAR), CAST(sale_price AS VARCHAR)
FROM nav_observations
WHERE date = CAST(? AS DATE)
ORDER BY scheme_code`

	rows, err := s.db.QueryContext(ctx, q, domain.FormatDate(domain.NormalizeDate(date)))
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.NAVObservation
	for rows.Next() {
		var (
			obs                   domain.NAVObservation
			day, nav              string
			repurchase, salePrice sql.NullString
		)
		if err := rows.Scan(&obs.SchemeCode, &obs.SchemeName, &day, &nav,
			&obs.ISINGrowth, &obs.ISINDividend, &repurchase, &salePrice); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if obs.Date, err = domain.ParseDate(day); err != nil {
			return nil, err
		}
		if obs.NAV, err = decimal.NewFromString(nav); err != nil {
			return nil, fmt.Errorf("parse nav %q: %w", nav, err)
		}
		obs.RepurchasePrice = parseNullDecimal(repurchase)
		obs.SalePrice = parseNullDecimal(salePrice)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Schemes returns the scheme registry ordered by scheme code.
func (s *Store) Schemes(ctx context.Context) ([]domain.Scheme, error) {
	const q = `
SELECT scheme_code, COALESCE(scheme_name, ''), CAST(first_seen_date AS VARCHAR),
	CAST(last_seen_date AS VARCHAR), is_active
FROM schemes
ORDER BY scheme_code`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query schemes: %w", err)
	}
	defer rows.Close()

	var out []domain.Scheme
	for rows.Next() {
		var (
			sc          domain.Scheme
			first, last string
		)
		if err := rows.Scan(&sc.SchemeCode, &sc.SchemeName, &first, &last, &sc.IsActive); err != nil {
			return nil, fmt.Errorf("scan scheme: %w", err)
		}
		if sc.FirstSeenDate, err = domain.ParseDate(first); err != nil {
			return nil, err
		}
		if sc.LastSeenDate, err = domain.ParseDate(last); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Stats summarizes the store contents.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	const q = `
SELECT
	(SELECT count(*) FROM nav_observations),
	(SELECT count(*) FROM schemes),
	(SELECT count(*) FROM schemes WHERE is_active),
	(SELECT count(*) FROM nav_no_data_dates),
	(SELECT CAST(min(date) AS VARCHAR) FROM nav_observations),
	(SELECT CAST(max(date) AS VARCHAR) FROM nav_observations)`

	var (
		st          domain.StoreStats
		first, last sql.NullString
	)
	if err := s.db.QueryRowContext(ctx, q).Scan(&st.Observations, &st.Schemes, &st.ActiveSchemes,
		&st.NoDataDates, &first, &last); err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	if first.Valid {
		st.FirstDate, _ = domain.ParseDate(first.String)
	}
	if last.Valid {
		st.LastDate, _ = domain.ParseDate(last.String)
	}
	return st, nil
}

// Ping checks the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
