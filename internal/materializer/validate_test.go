package materializer_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/internal/materializer"
	"navpulse/internal/shared/testutil"
	"navpulse/pkg/contracts/domain"
)

func TestValidateObservation(t *testing.T) {
	date := testutil.Day("2024-03-15")

	tests := []struct {
		name      string
		mutate    func(o *domain.NAVObservation)
		wantField string
	}{
		{"valid", func(o *domain.NAVObservation) {}, ""},
		{"nav zero", func(o *domain.NAVObservation) { o.NAV = decimal.Zero }, "nav"},
		{"nav at lower bound", func(o *domain.NAVObservation) { o.NAV = decimal.RequireFromString("0.01") }, "nav"},
		{"nav just above lower bound", func(o *domain.NAVObservation) { o.NAV = decimal.RequireFromString("0.0101") }, ""},
		{"nav at upper bound", func(o *domain.NAVObservation) { o.NAV = decimal.NewFromInt(10000) }, "nav"},
		{"nav too large", func(o *domain.NAVObservation) { o.NAV = decimal.NewFromInt(15000) }, "nav"},
		{"nav at store scale", func(o *domain.NAVObservation) { o.NAV = decimal.RequireFromString("45.12345678") }, ""},
		{"nav trailing zeros", func(o *domain.NAVObservation) { o.NAV = decimal.RequireFromString("45.1234000000") }, ""},
		{"nav finer than store scale", func(o *domain.NAVObservation) { o.NAV = decimal.RequireFromString("45.123456789") }, "nav"},
		{"sale price finer than store scale", func(o *domain.NAVObservation) {
			o.SalePrice = decimal.NewNullDecimal(decimal.RequireFromString("45.000000001"))
		}, "sale_price"},
		{"missing scheme code", func(o *domain.NAVObservation) { o.SchemeCode = "" }, "scheme_code"},
		{"non numeric scheme code", func(o *domain.NAVObservation) { o.SchemeCode = "ABC" }, "scheme_code"},
		{"other date", func(o *domain.NAVObservation) { o.Date = testutil.Day("2024-03-14") }, "date"},
		{"same date other clock", func(o *domain.NAVObservation) { o.Date = date.Add(15 * time.Hour) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testutil.Obs("119551", "2024-03-15", "45.1234")
			tt.mutate(&o)

			err := materializer.ValidateObservation(o, date)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *materializer.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestDeduplicate(t *testing.T) {
	in := []domain.NAVObservation{
		testutil.Obs("100001", "2024-01-02", "1"),
		testutil.Obs("100002", "2024-01-02", "2"),
		testutil.Obs("100001", "2024-01-02", "3"),
		testutil.Obs("100003", "2024-01-02", "4"),
		testutil.Obs("100002", "2024-01-02", "5"),
	}

	out := materializer.Deduplicate(in)
	require.Len(t, out, 3)

	got := map[string]string{}
	for _, o := range out {
		got[o.SchemeCode] = o.NAV.String()
	}
	assert.Equal(t, map[string]string{"100001": "3", "100002": "5", "100003": "4"}, got)
	assert.Equal(t, "100001", out[0].SchemeCode)
	assert.Equal(t, "100002", out[1].SchemeCode)
	assert.Equal(t, "100003", out[2].SchemeCode)
}

func TestDeduplicateOrderIndependentFinalState(t *testing.T) {
	a := testutil.Obs("100001", "2024-01-02", "1")
	b := testutil.Obs("100002", "2024-01-02", "2")

	first := materializer.Deduplicate([]domain.NAVObservation{a, b})
	second := materializer.Deduplicate([]domain.NAVObservation{b, a})

	toMap := func(recs []domain.NAVObservation) map[domain.ObservationKey]string {
		m := map[domain.ObservationKey]string{}
		for _, r := range recs {
			m[r.Key()] = r.NAV.String()
		}
		return m
	}
	assert.Equal(t, toMap(first), toMap(second))
}

func TestRetryDelay(t *testing.T) {
	cfg := materializer.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}

	assert.Equal(t, time.Duration(0), cfg.Delay(0))
	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.Equal(t, 4*time.Second, cfg.Delay(3))
	assert.Equal(t, 5*time.Second, cfg.Delay(4))
	assert.Equal(t, 5*time.Second, cfg.Delay(40))

	fixed := materializer.RetryConfig{MaxAttempts: 3, InitialDelay: 5 * time.Second, Multiplier: 1}
	assert.Equal(t, 5*time.Second, fixed.Delay(3))
}

func TestNewRetryConfig(t *testing.T) {
	cfg := materializer.NewRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
