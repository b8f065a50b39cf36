// Package memory provides an in-process record store for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"navpulse/pkg/contracts/domain"
)

// Store keeps observations, no-data markers and the scheme registry in maps.
// All writes take the same lock, so concurrent upserts never interleave.
type Store struct {
	mu           sync.RWMutex
	observations map[domain.ObservationKey]domain.NAVObservation
	noData       domain.DateSet
	schemes      map[string]domain.Scheme
	upserts      int
}

// New creates an empty store
func New() *Store {
	return &Store{
		observations: make(map[domain.ObservationKey]domain.NAVObservation),
		noData:       make(domain.DateSet),
		schemes:      make(map[string]domain.Scheme),
	}
}

// ExistingDates returns the dates in r holding observations or a no-data marker.
func (s *Store) ExistingDates(ctx context.Context, r domain.DateRange) (domain.DateSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(domain.DateSet)
	for k := range s.observations {
		d, err := domain.ParseDate(k.Date)
		if err != nil {
			continue
		}
		if r.Contains(d) {
			out.Add(d)
		}
	}
	for _, d := range s.noData.Sorted() {
		if r.Contains(d) {
			out.Add(d)
		}
	}
	return out, nil
}

// Upsert replaces the observations of records by key and refreshes the
// scheme registry. A no-data marker on date is cleared.
func (s *Store) Upsert(ctx context.Context, date time.Time, records []domain.NAVObservation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	date = domain.NormalizeDate(date)
	for _, rec := range records {
		rec.Date = domain.NormalizeDate(rec.Date)
		s.observations[rec.Key()] = rec
		s.touchScheme(rec)
	}
	delete(s.noData, domain.FormatDate(date))
	s.refreshActive()
	s.upserts++
	return len(records), nil
}

// MarkNoData stores an explicit no-data marker for date.
func (s *Store) MarkNoData(ctx context.Context, date time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noData.Add(date)
	return nil
}

func (s *Store) touchScheme(rec domain.NAVObservation) {
	sc, ok := s.schemes[rec.SchemeCode]
	if !ok {
		sc = domain.Scheme{
			SchemeCode:    rec.SchemeCode,
			FirstSeenDate: rec.Date,
			LastSeenDate:  rec.Date,
		}
	}
	if rec.SchemeName != "" {
		sc.SchemeName = rec.SchemeName
	}
	if rec.Date.Before(sc.FirstSeenDate) {
		sc.FirstSeenDate = rec.Date
	}
	if rec.Date.After(sc.LastSeenDate) {
		sc.LastSeenDate = rec.Date
	}
	s.schemes[rec.SchemeCode] = sc
}

// refreshActive marks schemes seen on the latest observation date as active.
func (s *Store) refreshActive() {
	latest, ok := s.latestLocked()
	for code, sc := range s.schemes {
		sc.IsActive = ok && sc.LastSeenDate.Equal(latest)
		s.schemes[code] = sc
	}
}

func (s *Store) latestLocked() (time.Time, bool) {
	var latest time.Time
	for _, sc := range s.schemes {
		if sc.LastSeenDate.After(latest) {
			latest = sc.LastSeenDate
		}
	}
	return latest, !latest.IsZero()
}

// Observations returns the observations of date ordered by scheme code.
func (s *Store) Observations(ctx context.Context, date time.Time) ([]domain.NAVObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.FormatDate(domain.NormalizeDate(date))
	var out []domain.NAVObservation
	for k, obs := range s.observations {
		if k.Date == day {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchemeCode < out[j].SchemeCode })
	return out, nil
}

// Get returns the observation stored under the key.
func (s *Store) Get(schemeCode string, date time.Time) (domain.NAVObservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.observations[domain.ObservationKey{SchemeCode: schemeCode, Date: domain.FormatDate(domain.NormalizeDate(date))}]
	return obs, ok
}

// Schemes returns the registry ordered by scheme code.
func (s *Store) Schemes(ctx context.Context) ([]domain.Scheme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Scheme, 0, len(s.schemes))
	for _, sc := range s.schemes {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchemeCode < out[j].SchemeCode })
	return out, nil
}

// Stats summarizes the store contents.
func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := domain.StoreStats{
		Observations: len(s.observations),
		Schemes:      len(s.schemes),
		NoDataDates:  len(s.noData),
	}
	for _, sc := range s.schemes {
		if sc.IsActive {
			st.ActiveSchemes++
		}
		if st.FirstDate.IsZero() || sc.FirstSeenDate.Before(st.FirstDate) {
			st.FirstDate = sc.FirstSeenDate
		}
		if sc.LastSeenDate.After(st.LastDate) {
			st.LastDate = sc.LastSeenDate
		}
	}
	return st, nil
}

// DailySchemeCounts returns the distinct scheme count per stored date,
// oldest first.
func (s *Store) DailySchemeCounts(ctx context.Context) ([]domain.DailySchemeCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	perDate := make(map[string]int)
	for k := range s.observations {
		perDate[k.Date]++
	}
	out := make([]domain.DailySchemeCount, 0, len(perDate))
	for day, n := range perDate {
		d, err := domain.ParseDate(day)
		if err != nil {
			continue
		}
		out = append(out, domain.DailySchemeCount{Date: d, Schemes: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.observations)
}

// UpsertCalls returns how many times Upsert succeeded.
func (s *Store) UpsertCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Ping reports whether the store is usable.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
