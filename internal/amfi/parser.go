package amfi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"navpulse/pkg/contracts/domain"
)

// ErrMissingHeader is returned when a report carries data rows but no header.
var ErrMissingHeader = errors.New("report header not found")

const rowDateLayout = "2-Jan-2006"

// column names after normalization
const (
	colSchemeCode   = "schemecode"
	colSchemeName   = "schemename"
	colISINGrowth   = "isindivpayout/isingrowth"
	colISINDividend = "isindivreinvestment"
	colNAV          = "netassetvalue"
	colRepurchase   = "repurchaseprice"
	colSale         = "saleprice"
	colDate         = "date"
)

// ParseResult is the outcome of parsing one report.
type ParseResult struct {
	Observations []domain.NAVObservation
	// Malformed counts data rows too short to carry the required columns.
	Malformed int
}

type columns map[string]int

func (c columns) get(fields []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return cleanValue(fields[i])
}

// Parse reads a semicolon separated NAV report.
//
// Fund house names, scheme category headings and blank lines carry no
// separator and are skipped. A NAV that does not parse is kept as zero so
// validation drops and counts it.
func Parse(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		cols   columns
		result = &ParseResult{}
	)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse report: %w", err)
		}
		if len(fields) < 2 {
			continue
		}
		if cols == nil {
			if !isHeader(fields) {
				return nil, ErrMissingHeader
			}
			cols = headerColumns(fields)
			if _, ok := cols[colNAV]; !ok {
				return nil, fmt.Errorf("%w: no net asset value column", ErrMissingHeader)
			}
			continue
		}
		if isHeader(fields) {
			continue
		}

		code := cols.get(fields, colSchemeCode)
		if code == "" || len(fields) <= cols[colNAV] {
			result.Malformed++
			continue
		}
		result.Observations = append(result.Observations, parseRow(cols, fields))
	}
	return result, nil
}

func parseRow(cols columns, fields []string) domain.NAVObservation {
	obs := domain.NAVObservation{
		SchemeCode:      cols.get(fields, colSchemeCode),
		SchemeName:      cols.get(fields, colSchemeName),
		ISINGrowth:      cols.get(fields, colISINGrowth),
		ISINDividend:    cols.get(fields, colISINDividend),
		RepurchasePrice: parseOptionalDecimal(cols.get(fields, colRepurchase)),
		SalePrice:       parseOptionalDecimal(cols.get(fields, colSale)),
	}
	if nav, err := decimal.NewFromString(cols.get(fields, colNAV)); err == nil {
		obs.NAV = nav
	}
	if d, err := time.Parse(rowDateLayout, cols.get(fields, colDate)); err == nil {
		obs.Date = domain.NormalizeDate(d)
	}
	return obs
}

func isHeader(fields []string) bool {
	return normalizeName(fields[0]) == colSchemeCode
}

func headerColumns(fields []string) columns {
	cols := make(columns, len(fields))
	for i, f := range fields {
		cols[normalizeName(f)] = i
	}
	return cols
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "N.A.", "NA", "N/A", "-":
		return ""
	}
	return s
}

func parseOptionalDecimal(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
