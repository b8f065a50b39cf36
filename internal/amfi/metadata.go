package amfi

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"navpulse/pkg/contracts/domain"
)

// ErrNoSchemeMetadata is returned for a scheme data file without usable rows.
var ErrNoSchemeMetadata = errors.New("scheme data file has no usable rows")

// scheme data columns after normalization, with the spellings seen so far
var metadataColumns = map[string]string{
	"amc":                      "amc",
	"amcname":                  "amc",
	"code":                     "code",
	"schemecode":               "code",
	"schemename":               "name",
	"schemetype":               "type",
	"schemecategory":           "category",
	"schemenavname":            "nav_name",
	"schememinimumamount":      "minimum_amount",
	"minimumamount":            "minimum_amount",
	"launchdate":               "launch_date",
	"closuredate":              "closure_date",
	"isindivpayout/isingrowth": "isin_growth",
	"isingrowth":               "isin_growth",
	"isindivreinvestment":      "isin_dividend",
}

var metadataDateLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"2 Jan 2006",
}

var metadataValidator = validator.New()

// MetadataResult is the outcome of parsing one scheme data file.
type MetadataResult struct {
	Schemes []domain.SchemeMetadata
	// Malformed counts rows dropped for a missing or invalid code or name.
	Malformed int
}

// ParseSchemeMetadata reads the comma separated scheme data file. Dates are
// day first; an unreadable date or minimum amount is left blank. A code
// listed twice keeps its last row.
func ParseSchemeMetadata(r io.Reader) (*MetadataResult, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoSchemeMetadata
	}
	if err != nil {
		return nil, fmt.Errorf("parse scheme data: %w", err)
	}
	cols := make(columns, len(header))
	for i, h := range header {
		if key, ok := metadataColumns[normalizeName(strings.TrimPrefix(h, "\ufeff"))]; ok {
			cols[key] = i
		}
	}
	for _, required := range []string{"code", "name"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: scheme data has no %s column", ErrMissingHeader, required)
		}
	}

	result := &MetadataResult{}
	index := make(map[string]int)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse scheme data: %w", err)
		}
		if isBlankRow(fields) {
			continue
		}

		m := domain.SchemeMetadata{
			SchemeCode:     cols.get(fields, "code"),
			SchemeName:     cols.get(fields, "name"),
			AMCName:        cols.get(fields, "amc"),
			SchemeType:     cols.get(fields, "type"),
			SchemeCategory: cols.get(fields, "category"),
			SchemeNAVName:  cols.get(fields, "nav_name"),
			MinimumAmount:  parseAmount(cols.get(fields, "minimum_amount")),
			LaunchDate:     parseMetadataDate(cols.get(fields, "launch_date")),
			ClosureDate:    parseMetadataDate(cols.get(fields, "closure_date")),
			ISINGrowth:     cols.get(fields, "isin_growth"),
			ISINDividend:   cols.get(fields, "isin_dividend"),
		}
		if err := metadataValidator.Struct(m); err != nil {
			result.Malformed++
			continue
		}
		if i, ok := index[m.SchemeCode]; ok {
			result.Schemes[i] = m
			continue
		}
		index[m.SchemeCode] = len(result.Schemes)
		result.Schemes = append(result.Schemes, m)
	}
	return result, nil
}

// SchemeMetadata downloads and parses the scheme data file.
func (s *Source) SchemeMetadata(ctx context.Context) ([]domain.SchemeMetadata, error) {
	body, err := s.client.SchemeData(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseSchemeMetadata(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "amfi_scheme_data_parsed",
		slog.Int("bytes", len(body)),
		slog.Int("schemes", len(parsed.Schemes)),
		slog.Int("malformed", parsed.Malformed))
	if len(parsed.Schemes) == 0 {
		return nil, ErrNoSchemeMetadata
	}
	return parsed.Schemes, nil
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseMetadataDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range metadataDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.NormalizeDate(t)
		}
	}
	return time.Time{}
}

func parseAmount(s string) decimal.NullDecimal {
	return parseOptionalDecimal(strings.ReplaceAll(s, ",", ""))
}
