package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the wire and storage layout of calendar dates.
const DateLayout = "2006-01-02"

var (
	ErrZeroDate      = errors.New("date is zero")
	ErrRangeReversed = errors.New("start date is after end date")
)

// NormalizeDate drops the clock part of t and returns its calendar date at UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return NormalizeDate(t), nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateRange is an inclusive closed interval of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a normalized range; it does not validate.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: NormalizeDate(start), End: NormalizeDate(end)}
}

// Validate reports why the range cannot be materialized, if at all.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrZeroDate
	}
	if NormalizeDate(r.Start).After(NormalizeDate(r.End)) {
		return ErrRangeReversed
	}
	return nil
}

// Days lists every date of the range in ascending order.
func (r DateRange) Days() []time.Time {
	start, end := NormalizeDate(r.Start), NormalizeDate(r.End)
	if start.After(end) {
		return nil
	}
	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := NormalizeDate(t)
	return !d.Before(NormalizeDate(r.Start)) && !d.After(NormalizeDate(r.End))
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s]", FormatDate(r.Start), FormatDate(r.End))
}

// DateSet is a set of calendar dates keyed by their YYYY-MM-DD form.
type DateSet map[string]struct{}

// NewDateSet builds a set from the given dates.
func NewDateSet(dates ...time.Time) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(t time.Time) {
	s[FormatDate(NormalizeDate(t))] = struct{}{}
}

func (s DateSet) Has(t time.Time) bool {
	_, ok := s[FormatDate(NormalizeDate(t))]
	return ok
}

// Sorted returns the members in ascending order.
func (s DateSet) Sorted() []time.Time {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]time.Time, 0, len(keys))
	for _, k := range keys {
		t, err := time.Parse(DateLayout, k)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Missing returns the dates of r absent from s, ascending.
func (s DateSet) Missing(r DateRange) []time.Time {
	var out []time.Time
	for _, d := range r.Days() {
		if !s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}
