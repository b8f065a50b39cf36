package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"navpulse/pkg/contracts/domain"
)

// ErrEmptyMetadata is returned when a merge carries no schemes. Merging it
// would delist every scheme.
var ErrEmptyMetadata = errors.New("no scheme metadata to merge")

// minimumAmountScale matches scheme_metadata.minimum_amount.
const minimumAmountScale = 2

const upsertMetadataSQL = `
INSERT INTO scheme_metadata
	(scheme_code, scheme_name, amc_name, scheme_type, scheme_category, scheme_nav_name,
	 minimum_amount, launch_date, closure_date, isin_growth, isin_dividend,
	 first_seen_date, last_seen_date, is_listed, attribute_last_updated)
VALUES
	(?, ?, ?, ?, ?, ?, CAST(? AS DECIMAL(18,2)), CAST(? AS DATE), CAST(? AS DATE), ?, ?,
	 CAST(? AS DATE), CAST(? AS DATE), true, CAST(? AS DATE))
ON CONFLICT (scheme_code) DO UPDATE SET
	scheme_name            = excluded.scheme_name,
	amc_name               = excluded.amc_name,
	scheme_type            = excluded.scheme_type,
	scheme_category        = excluded.scheme_category,
	scheme_nav_name        = excluded.scheme_nav_name,
	minimum_amount         = excluded.minimum_amount,
	launch_date            = excluded.launch_date,
	closure_date           = excluded.closure_date,
	isin_growth            = excluded.isin_growth,
	isin_dividend          = excluded.isin_dividend,
	last_seen_date         = excluded.last_seen_date,
	is_listed              = true,
	attribute_last_updated = excluded.attribute_last_updated`

// MergeSchemeMetadata folds one scheme data file into the master data as of
// today. New schemes are first seen at their launch date, or today when it
// is blank. Listed schemes take the file's attributes. Schemes missing from
// the file keep their row and are marked unlisted.
func (s *Store) MergeSchemeMetadata(ctx context.Context, schemes []domain.SchemeMetadata, today time.Time) (res domain.MetadataMerge, err error) {
	if len(schemes) == 0 {
		return res, ErrEmptyMetadata
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	day := domain.FormatDate(domain.NormalizeDate(today))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	listed, err := listedCodes(ctx, tx)
	if err != nil {
		return res, err
	}

	stmt, err := tx.PrepareContext(ctx, upsertMetadataSQL)
	if err != nil {
		return res, fmt.Errorf("prepare metadata upsert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]bool, len(schemes))
	for _, m := range schemes {
		if seen[m.SchemeCode] {
			continue
		}
		seen[m.SchemeCode] = true

		firstSeen := day
		if !m.LaunchDate.IsZero() {
			firstSeen = domain.FormatDate(m.LaunchDate)
		}
		if _, err = stmt.ExecContext(ctx,
			m.SchemeCode,
			m.SchemeName,
			nullString(m.AMCName),
			nullString(m.SchemeType),
			nullString(m.SchemeCategory),
			nullString(m.SchemeNAVName),
			nullAmount(m.MinimumAmount),
			nullDate(m.LaunchDate),
			nullDate(m.ClosureDate),
			nullString(m.ISINGrowth),
			nullString(m.ISINDividend),
			firstSeen,
			day,
			day,
		); err != nil {
			return res, fmt.Errorf("merge scheme %s: %w", m.SchemeCode, err)
		}
		if _, known := listed[m.SchemeCode]; known {
			res.Updated++
		} else {
			res.New++
		}
	}
	res.Received = len(seen)

	for code, isListed := range listed {
		if seen[code] || !isListed {
			continue
		}
		if _, err = tx.ExecContext(ctx, `UPDATE scheme_metadata SET is_listed = false WHERE scheme_code = ?`, code); err != nil {
			return res, fmt.Errorf("delist scheme %s: %w", code, err)
		}
		res.Delisted++
	}

	if err = tx.Commit(); err != nil {
		return res, fmt.Errorf("commit scheme metadata: %w", err)
	}
	return res, nil
}

// listedCodes maps every known scheme code to its is_listed flag.
func listedCodes(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT scheme_code, is_listed FROM scheme_metadata`)
	if err != nil {
		return nil, fmt.Errorf("query scheme metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			code     string
			isListed bool
		)
		if err := rows.Scan(&code, &isListed); err != nil {
			return nil, fmt.Errorf("scan scheme metadata: %w", err)
		}
		out[code] = isListed
	}
	return out, rows.Err()
}

// ListedSchemes returns the scheme master data ordered by scheme code.
func (s *Store) ListedSchemes(ctx context.Context) ([]domain.ListedScheme, error) {
	const q = `
SELECT scheme_code, scheme_name, COALESCE(amc_name, ''), COALESCE(scheme_type, ''),
	COALESCE(scheme_category, ''), COALESCE(scheme_nav_name, ''), CAST(minimum_amount AS VARCHAR),
	CAST(launch_date AS VARCHAR), CAST(closure_date AS VARCHAR),
	COALESCE(isin_growth, ''), COALESCE(isin_dividend, ''),
	CAST(first_seen_date AS VARCHAR), CAST(last_seen_date AS VARCHAR), is_listed,
	CAST(attribute_last_updated AS VARCHAR)
FROM scheme_metadata
ORDER BY scheme_code`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query scheme metadata: %w", err)
	}
	defer rows.Close()

	var out []domain.ListedScheme
	for rows.Next() {
		var (
			ls                             domain.ListedScheme
			amount, launch, closure        sql.NullString
			firstSeen, lastSeen, attribute string
		)
		if err := rows.Scan(&ls.SchemeCode, &ls.SchemeName, &ls.AMCName, &ls.SchemeType,
			&ls.SchemeCategory, &ls.SchemeNAVName, &amount, &launch, &closure,
			&ls.ISINGrowth, &ls.ISINDividend, &firstSeen, &lastSeen, &ls.IsListed, &attribute); err != nil {
			return nil, fmt.Errorf("scan scheme metadata: %w", err)
		}
		ls.MinimumAmount = parseNullDecimal(amount)
		ls.LaunchDate = parseNullDate(launch)
		ls.ClosureDate = parseNullDate(closure)
		if ls.FirstSeenDate, err = domain.ParseDate(firstSeen); err != nil {
			return nil, err
		}
		if ls.LastSeenDate, err = domain.ParseDate(lastSeen); err != nil {
			return nil, err
		}
		if ls.AttributeLastUpdated, err = domain.ParseDate(attribute); err != nil {
			return nil, err
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// DailySchemeCounts returns the number of distinct schemes stored per date,
// oldest first. Dates without observations are absent.
func (s *Store) DailySchemeCounts(ctx context.Context) ([]domain.DailySchemeCount, error) {
	const q = `
SELECT CAST(date AS VARCHAR), count(DISTINCT scheme_code)
FROM nav_observations
GROUP BY date
ORDER BY date`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query daily scheme counts: %w", err)
	}
	defer rows.Close()

	var out []domain.DailySchemeCount
	for rows.Next() {
		var (
			c   domain.DailySchemeCount
			day string
		)
		if err := rows.Scan(&day, &c.Schemes); err != nil {
			return nil, fmt.Errorf("scan daily scheme count: %w", err)
		}
		if c.Date, err = domain.ParseDate(day); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullAmount(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.Round(minimumAmountScale).String()
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return domain.FormatDate(t)
}

func parseNullDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	d, err := domain.ParseDate(s.String)
	if err != nil {
		return time.Time{}
	}
	return d
}
