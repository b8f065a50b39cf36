package amfi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"navpulse/internal/infrastructure"
	"navpulse/internal/materializer"
	"navpulse/pkg/contracts/domain"
)

// Source adapts the portal client to materializer.Source.
type Source struct {
	client       *Client
	skipWeekends bool
	now          func() time.Time
	logger       *slog.Logger
}

// SourceOption configures a Source
type SourceOption func(*Source)

// WithSkipWeekends answers Saturdays and Sundays with no data without
// calling the portal.
func WithSkipWeekends(skip bool) SourceOption {
	return func(s *Source) { s.skipWeekends = skip }
}

// WithSourceClock overrides time.Now for the publication cutoff.
func WithSourceClock(now func() time.Time) SourceOption {
	return func(s *Source) { s.now = now }
}

// WithSourceLogger sets the logger
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source over client
func NewSource(client *Client, opts ...SourceOption) *Source {
	s := &Source{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = infrastructure.GetLogger()
	}
	return s
}

// Fetch downloads and parses the report for a single date. An empty report
// for a past date means the portal published nothing for it. The portal
// also answers header-only for today and future dates, so those come back
// as materializer.ErrNotYetPublished and are never marked.
func (s *Source) Fetch(ctx context.Context, date time.Time) ([]domain.NAVObservation, error) {
	date = domain.NormalizeDate(date)
	if s.skipWeekends && isWeekend(date) {
		return nil, materializer.ErrNoDataForDate
	}
	today := domain.NormalizeDate(s.now().UTC())
	if date.After(today) {
		return nil, materializer.NewFetchError(date, 0, materializer.ErrNotYetPublished)
	}

	body, err := s.client.NAVHistory(ctx, date, date)
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(bytes.NewReader(body))
	if err != nil {
		return nil, materializer.NewFetchError(date, 0, err)
	}

	infrastructure.WithDate(s.logger, date).DebugContext(ctx, "amfi_report_parsed",
		slog.Int("bytes", len(body)),
		slog.Int("rows", len(parsed.Observations)),
		slog.Int("malformed", parsed.Malformed))

	if len(parsed.Observations) == 0 {
		if parsed.Malformed > 0 {
			return nil, materializer.NewFetchError(date, 0, fmt.Errorf("%d malformed rows and no usable ones", parsed.Malformed))
		}
		if !date.Before(today) {
			return nil, materializer.NewFetchError(date, 0, materializer.ErrNotYetPublished)
		}
		return nil, materializer.ErrNoDataForDate
	}
	return parsed.Observations, nil
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
