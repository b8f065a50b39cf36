package materializer

import (
	"context"
	"time"

	"navpulse/pkg/contracts/domain"
)

// Store is the durable owner of observation state.
type Store interface {
	// ExistingDates returns the dates within r that hold observations or an
	// explicit no-data marker.
	ExistingDates(ctx context.Context, r domain.DateRange) (domain.DateSet, error)
	// Upsert replaces or inserts the records of a single date atomically and
	// returns the number of records written.
	Upsert(ctx context.Context, date time.Time, records []domain.NAVObservation) (int, error)
	// MarkNoData records that date was confirmed to have no observations.
	MarkNoData(ctx context.Context, date time.Time) error
}

// Source fetches the observations published for one date.
// It returns ErrNoDataForDate when the upstream confirms there is nothing to
// publish for that date.
type Source interface {
	Fetch(ctx context.Context, date time.Time) ([]domain.NAVObservation, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, date time.Time) ([]domain.NAVObservation, error)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context, date time.Time) ([]domain.NAVObservation, error) {
	return f(ctx, date)
}
