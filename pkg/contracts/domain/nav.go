package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NAVObservation is one published Net Asset Value for a scheme on a date.
// The pair (SchemeCode, Date) identifies the observation in the store.
type NAVObservation struct {
	SchemeCode      string              `json:"scheme_code" validate:"required,numeric,max=12"`
	SchemeName      string              `json:"scheme_name,omitempty" validate:"omitempty,max=512"`
	Date            time.Time           `json:"date" validate:"required"`
	NAV             decimal.Decimal     `json:"nav"`
	ISINGrowth      string              `json:"isin_growth,omitempty" validate:"omitempty,max=12"`
	ISINDividend    string              `json:"isin_dividend,omitempty" validate:"omitempty,max=12"`
	RepurchasePrice decimal.NullDecimal `json:"repurchase_price"`
	SalePrice       decimal.NullDecimal `json:"sale_price"`
}

// ObservationKey is the uniqueness key of a NAVObservation.
type ObservationKey struct {
	SchemeCode string
	Date       string
}

// Key returns the observation's uniqueness key.
func (o NAVObservation) Key() ObservationKey {
	return ObservationKey{SchemeCode: o.SchemeCode, Date: FormatDate(o.Date)}
}

// Scheme is the registry entry kept for every scheme ever observed.
type Scheme struct {
	SchemeCode    string    `json:"scheme_code"`
	SchemeName    string    `json:"scheme_name"`
	FirstSeenDate time.Time `json:"first_seen_date"`
	LastSeenDate  time.Time `json:"last_seen_date"`
	IsActive      bool      `json:"is_active"`
}

// StoreStats summarizes the contents of a record store.
type StoreStats struct {
	Observations  int       `json:"observations"`
	Schemes       int       `json:"schemes"`
	ActiveSchemes int       `json:"active_schemes"`
	NoDataDates   int       `json:"no_data_dates"`
	FirstDate     time.Time `json:"first_date,omitempty"`
	LastDate      time.Time `json:"last_date,omitempty"`
}
