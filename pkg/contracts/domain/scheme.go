package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemeMetadata is one scheme's entry in the portal's scheme data file.
// Zero dates mean the file left them blank.
type SchemeMetadata struct {
	SchemeCode     string              `json:"scheme_code" validate:"required,numeric,max=12"`
	SchemeName     string              `json:"scheme_name" validate:"required,max=512"`
	AMCName        string              `json:"amc_name,omitempty"`
	SchemeType     string              `json:"scheme_type,omitempty"`
	SchemeCategory string              `json:"scheme_category,omitempty"`
	SchemeNAVName  string              `json:"scheme_nav_name,omitempty"`
	MinimumAmount  decimal.NullDecimal `json:"minimum_amount"`
	LaunchDate     time.Time           `json:"launch_date,omitempty"`
	ClosureDate    time.Time           `json:"closure_date,omitempty"`
	ISINGrowth     string              `json:"isin_growth,omitempty" validate:"omitempty,max=12"`
	ISINDividend   string              `json:"isin_dividend,omitempty" validate:"omitempty,max=12"`
}

// ListedScheme is the master data row kept for every scheme the scheme data
// file ever listed. Schemes dropped from the file stay with IsListed false.
type ListedScheme struct {
	SchemeMetadata
	FirstSeenDate        time.Time `json:"first_seen_date"`
	LastSeenDate         time.Time `json:"last_seen_date"`
	IsListed             bool      `json:"is_listed"`
	AttributeLastUpdated time.Time `json:"attribute_last_updated"`
}

// MetadataMerge counts what one merge of the scheme data file changed.
type MetadataMerge struct {
	Received int `json:"received"`
	New      int `json:"new"`
	Updated  int `json:"updated"`
	Delisted int `json:"delisted"`
}

// DailySchemeCount is the number of distinct schemes stored for a date.
type DailySchemeCount struct {
	Date    time.Time `json:"date"`
	Schemes int       `json:"schemes"`
}
