package amfi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/pkg/contracts/domain"
)

const sampleReport = `Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date

Open Ended Schemes(Debt Scheme - Banking and PSU Fund)

Aditya Birla Sun Life Mutual Fund

119551;Aditya Birla Sun Life Banking & PSU Debt Fund  - DIRECT - IDCW;INF209KA12Z1;INF209KA13Z9;106.8419;;;02-Jan-2024
119552;Aditya Birla Sun Life Banking & PSU Debt Fund  - DIRECT - MONTHLY IDCW;INF209K01YO4;N.A.;110.2290;N.A.;N.A.;02-Jan-2024

Axis Mutual Fund

120438;Axis Banking & PSU Debt Fund - Direct Plan - Growth Option;INF846K01DP8;-;2453.1462;2440.88;2465.41;02-Jan-2024
`

func TestParseReport(t *testing.T) {
	res, err := Parse(strings.NewReader(sampleReport))
	require.NoError(t, err)
	require.Len(t, res.Observations, 3)
	assert.Equal(t, 0, res.Malformed)

	first := res.Observations[0]
	assert.Equal(t, "119551", first.SchemeCode)
	assert.Equal(t, "Aditya Birla Sun Life Banking & PSU Debt Fund  - DIRECT - IDCW", first.SchemeName)
	assert.Equal(t, "INF209KA12Z1", first.ISINGrowth)
	assert.Equal(t, "INF209KA13Z9", first.ISINDividend)
	assert.Equal(t, "106.8419", first.NAV.String())
	assert.Equal(t, "2024-01-02", domain.FormatDate(first.Date))
	assert.False(t, first.RepurchasePrice.Valid)
	assert.False(t, first.SalePrice.Valid)

	second := res.Observations[1]
	assert.Empty(t, second.ISINDividend)
	assert.False(t, second.RepurchasePrice.Valid)

	third := res.Observations[2]
	assert.Empty(t, third.ISINDividend)
	require.True(t, third.RepurchasePrice.Valid)
	assert.Equal(t, "2440.88", third.RepurchasePrice.Decimal.String())
	require.True(t, third.SalePrice.Valid)
	assert.Equal(t, "2465.41", third.SalePrice.Decimal.String())
}

func TestParseHeaderVariants(t *testing.T) {
	// daily file layout: different column order and a spaced ISIN header
	report := "Scheme Code;ISIN Div Payout/ ISIN Growth;ISIN Div Reinvestment;Scheme Name;Net Asset Value;Date\n" +
		"120503;INF846K01EW2;INF846K01EX0;Axis ELSS Tax Saver Fund - Direct Plan - Growth;92.4871;5-Jan-2024\n"

	res, err := Parse(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, res.Observations, 1)

	obs := res.Observations[0]
	assert.Equal(t, "120503", obs.SchemeCode)
	assert.Equal(t, "INF846K01EW2", obs.ISINGrowth)
	assert.Equal(t, "Axis ELSS Tax Saver Fund - Direct Plan - Growth", obs.SchemeName)
	assert.Equal(t, "2024-01-05", domain.FormatDate(obs.Date))
}

func TestParseEmptyAndSectionOnly(t *testing.T) {
	tests := []struct {
		name   string
		report string
	}{
		{"empty", ""},
		{"blank lines", "\n\n\r\n"},
		{"header only", "Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date\n"},
		{"sections only", "Open Ended Schemes(Equity Scheme)\n\nAxis Mutual Fund\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(strings.NewReader(tt.report))
			require.NoError(t, err)
			assert.Empty(t, res.Observations)
		})
	}
}

func TestParseMissingHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("119551;Some Fund;INF1;INF2;10.5;;;02-Jan-2024\n"))
	assert.ErrorIs(t, err, ErrMissingHeader)

	_, err = Parse(strings.NewReader("Scheme Code;Scheme Name;Date\n119551;Fund;02-Jan-2024\n"))
	assert.ErrorIs(t, err, ErrMissingHeader)
}

func TestParseUnparseableValuesKeptForValidation(t *testing.T) {
	report := "Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date\n" +
		"100001;Fund A;;;N.A.;;;02-Jan-2024\n" +
		"100002;Fund B;;;abc;;;02-Jan-2024\n" +
		"100003;Fund C;;;12.5;;;not-a-date\n" +
		";Fund D;;;12.5;;;02-Jan-2024\n"

	res, err := Parse(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, res.Observations, 3)
	assert.Equal(t, 1, res.Malformed)

	assert.True(t, res.Observations[0].NAV.IsZero())
	assert.True(t, res.Observations[1].NAV.IsZero())
	assert.True(t, res.Observations[2].Date.IsZero())
}

func TestParseRepeatedHeaderSkipped(t *testing.T) {
	header := "Scheme Code;Scheme Name;ISIN Div Payout/ISIN Growth;ISIN Div Reinvestment;Net Asset Value;Repurchase Price;Sale Price;Date\n"
	report := header + "100001;Fund A;;;10;;;02-Jan-2024\n" + header + "100002;Fund B;;;20;;;02-Jan-2024\n"

	res, err := Parse(strings.NewReader(report))
	require.NoError(t, err)
	assert.Len(t, res.Observations, 2)
}
