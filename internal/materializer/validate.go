package materializer

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"navpulse/pkg/contracts/domain"
)

// NAV bounds, both exclusive.
var (
	MinNAV = decimal.RequireFromString("0.01")
	MaxNAV = decimal.NewFromInt(10000)
)

// MaxPriceScale is the number of decimal places the store keeps for NAV and
// prices. Finer values are dropped rather than rounded.
const MaxPriceScale int32 = 8

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateObservation checks a record fetched for date.
// It returns a *ValidationError describing the first violated rule.
func ValidateObservation(o domain.NAVObservation, date time.Time) error {
	if err := structValidator.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{
				SchemeCode: o.SchemeCode,
				Date:       date,
				Field:      verrs[0].Field(),
				Reason:     "failed " + verrs[0].Tag(),
			}
		}
		return &ValidationError{SchemeCode: o.SchemeCode, Date: date, Field: "record", Reason: err.Error()}
	}
	if !domain.NormalizeDate(o.Date).Equal(domain.NormalizeDate(date)) {
		return &ValidationError{
			SchemeCode: o.SchemeCode,
			Date:       date,
			Field:      "date",
			Reason:     "is " + domain.FormatDate(o.Date),
		}
	}
	if o.NAV.LessThanOrEqual(MinNAV) || o.NAV.GreaterThanOrEqual(MaxNAV) {
		return &ValidationError{
			SchemeCode: o.SchemeCode,
			Date:       date,
			Field:      "nav",
			Reason:     o.NAV.String() + " outside (" + MinNAV.String() + ", " + MaxNAV.String() + ")",
		}
	}
	for _, p := range []struct {
		field string
		value decimal.NullDecimal
	}{
		{"nav", decimal.NewNullDecimal(o.NAV)},
		{"repurchase_price", o.RepurchasePrice},
		{"sale_price", o.SalePrice},
	} {
		if p.value.Valid && !p.value.Decimal.Equal(p.value.Decimal.Truncate(MaxPriceScale)) {
			return &ValidationError{
				SchemeCode: o.SchemeCode,
				Date:       date,
				Field:      p.field,
				Reason:     p.value.Decimal.String() + " has more than 8 decimal places",
			}
		}
	}
	return nil
}

// filterValid splits records into those that pass validation and the
// reasons the others were dropped.
func filterValid(date time.Time, records []domain.NAVObservation) ([]domain.NAVObservation, []error) {
	valid := make([]domain.NAVObservation, 0, len(records))
	var dropped []error
	for _, rec := range records {
		if err := ValidateObservation(rec, date); err != nil {
			dropped = append(dropped, err)
			continue
		}
		rec.Date = domain.NormalizeDate(rec.Date)
		valid = append(valid, rec)
	}
	return valid, dropped
}

// Deduplicate keeps the last occurrence of each (scheme_code, date) key.
// Keys stay in the order they were first seen.
func Deduplicate(records []domain.NAVObservation) []domain.NAVObservation {
	index := make(map[domain.ObservationKey]int, len(records))
	out := make([]domain.NAVObservation, 0, len(records))
	for _, rec := range records {
		k := rec.Key()
		if i, ok := index[k]; ok {
			out[i] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}
