package materializer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"navpulse/internal/infrastructure"
	"navpulse/pkg/contracts/domain"
)

// Materializer fills the missing dates of a range from a Source into a Store.
type Materializer struct {
	store       Store
	source      Source
	retry       RetryConfig
	concurrency int
	tracer      *RunTracer
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Materializer
type Option func(*Materializer)

// WithConcurrency bounds the number of dates processed at once.
// Values below 2 mean sequential processing.
func WithConcurrency(n int) Option {
	return func(m *Materializer) { m.concurrency = n }
}

// WithRetry sets the retry policy for transient fetch failures.
func WithRetry(cfg RetryConfig) Option {
	return func(m *Materializer) { m.retry = cfg }
}

// WithTracer attaches span and metric instrumentation.
func WithTracer(rt *RunTracer) Option {
	return func(m *Materializer) { m.tracer = rt }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.logger = l }
}

// WithClock overrides time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// New creates a Materializer
func New(store Store, source Source, opts ...Option) *Materializer {
	m := &Materializer{
		store:       store,
		source:      source,
		retry:       NewRetryConfig(),
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = infrastructure.GetLogger()
	}
	if m.tracer == nil {
		m.tracer = &RunTracer{}
	}
	return m
}

// Materialize fetches every date of r the store does not cover yet.
//
// Only an invalid range or an unreadable store coverage return an error.
// Every other failure is isolated to its date and reported in the result.
// When ctx is cancelled, dates that had not finished fetching are reported
// as not attempted and a date whose fetch had completed still gets written.
func (m *Materializer) Materialize(ctx context.Context, r domain.DateRange) (*domain.MaterializationResult, error) {
	if err := r.Validate(); err != nil {
		return nil, &InvalidRangeError{Range: r, Cause: err}
	}
	r = domain.NewDateRange(r.Start, r.End)

	runID := uuid.New().String()
	if infrastructure.GetTraceID(ctx) == "" {
		ctx = infrastructure.WithTraceID(ctx, runID)
	}
	ctx, span := m.tracer.StartRun(ctx, runID, r)
	defer span.End()
	log := infrastructure.WithRun(m.logger, runID)

	result := &domain.MaterializationResult{
		RunID:     runID,
		Range:     r,
		StartedAt: m.now(),
	}

	existing, err := m.store.ExistingDates(ctx, r)
	if err != nil {
		err = &StoreReadError{Cause: err}
		log.ErrorContext(ctx, "materialize_aborted", slog.String("error", err.Error()))
		m.tracer.AbortRun(ctx, span, err)
		return nil, err
	}

	days := r.Days()
	outcomes := make([]domain.DateOutcome, len(days))
	var missing []int
	for i, d := range days {
		if existing.Has(d) {
			outcomes[i] = domain.DateOutcome{Date: d, Status: domain.DateStatusSkipped}
			continue
		}
		missing = append(missing, i)
	}

	log.InfoContext(ctx, "materialize_started",
		slog.String("from", domain.FormatDate(r.Start)),
		slog.String("to", domain.FormatDate(r.End)),
		slog.Int("requested", len(days)),
		slog.Int("missing", len(missing)),
		slog.Int("concurrency", m.concurrency))

	if m.concurrency > 1 {
		m.runPool(ctx, log, days, missing, outcomes)
	} else {
		for _, i := range missing {
			if ctx.Err() != nil {
				outcomes[i] = notAttempted(days[i])
				continue
			}
			outcomes[i] = m.processDate(ctx, log, days[i])
		}
	}

	for _, o := range outcomes {
		result.Record(o)
	}
	result.Cancelled = ctx.Err() != nil
	result.FinishedAt = m.now()

	m.tracer.FinishRun(ctx, span, result)
	log.InfoContext(ctx, "materialize_completed",
		slog.Int("written", len(result.Written)),
		slog.Int("no_data", len(result.NoData)),
		slog.Int("failed", len(result.Failed)),
		slog.Int("not_attempted", len(result.NotAttempted)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("records_upserted", result.RecordsUpserted),
		slog.Int("records_dropped", result.RecordsDropped),
		slog.Bool("cancelled", result.Cancelled),
		slog.Duration("duration", result.Duration()))

	return result, nil
}

// runPool processes the missing dates on a bounded pool. Each worker owns
// exactly one date, so no two workers write the same key.
func (m *Materializer) runPool(ctx context.Context, log *slog.Logger, days []time.Time, missing []int, outcomes []domain.DateOutcome) {
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, i := range missing {
		if ctx.Err() != nil {
			outcomes[i] = notAttempted(days[i])
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = notAttempted(days[i])
				return nil
			}
			outcomes[i] = m.processDate(ctx, log, days[i])
			return nil
		})
	}
	_ = g.Wait()
}

// processDate runs fetch, validate, dedupe and write for one date. It never
// returns an error; the outcome carries the failure.
func (m *Materializer) processDate(ctx context.Context, log *slog.Logger, date time.Time) (out domain.DateOutcome) {
	log = infrastructure.WithDate(log, date)
	ctx, span := m.tracer.StartDate(ctx, date)
	defer func() {
		m.tracer.FinishDate(ctx, span, out)
		span.End()
	}()

	out.Date = date
	records, attempts, err := m.fetchWithRetry(ctx, log, date)
	out.Attempts = attempts

	// The fetch is complete from here on. Writes are detached from ctx so a
	// stop signal cannot leave a date half written.
	writeCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(err, ErrNoDataForDate):
		if err := m.store.MarkNoData(writeCtx, date); err != nil {
			return m.fail(ctx, log, out, domain.ReasonStoreWrite, &StoreWriteError{Date: date, Op: "mark_no_data", Cause: err})
		}
		out.Status = domain.DateStatusNoData
		log.InfoContext(ctx, "date_no_data")
		return out
	case err != nil && ctx.Err() != nil:
		log.WarnContext(ctx, "date_interrupted",
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		out.Status = domain.DateStatusNotAttempted
		return out
	case err != nil:
		reason := domain.ReasonFetchRejected
		switch {
		case errors.Is(err, ErrNotYetPublished):
			reason = domain.ReasonNotPublished
		case IsTransient(err):
			reason = domain.ReasonRetriesExhausted
		}
		return m.fail(ctx, log, out, reason, err)
	}

	valid, dropped := filterValid(date, records)
	out.Dropped = len(dropped)
	for _, verr := range dropped {
		log.DebugContext(ctx, "record_dropped", slog.String("reason", verr.Error()))
	}

	valid = Deduplicate(valid)
	if len(valid) == 0 {
		return m.fail(ctx, log, out, domain.ReasonNoValidRecords,
			errors.New("no record passed validation"))
	}

	n, err := m.store.Upsert(writeCtx, date, valid)
	if err != nil {
		return m.fail(ctx, log, out, domain.ReasonStoreWrite, &StoreWriteError{Date: date, Op: "upsert", Cause: err})
	}

	out.Status = domain.DateStatusWritten
	out.Records = n
	log.InfoContext(ctx, "date_written",
		slog.Int("records", n),
		slog.Int("dropped", out.Dropped),
		slog.Int("attempts", attempts))
	return out
}

func (m *Materializer) fail(ctx context.Context, log *slog.Logger, out domain.DateOutcome, reason string, err error) domain.DateOutcome {
	out.Status = domain.DateStatusFailed
	out.Reason = reason
	out.Error = err.Error()
	infrastructure.RecordError(ctx, err)
	log.ErrorContext(ctx, "date_failed",
		slog.String("reason", reason),
		slog.Int("attempts", out.Attempts),
		slog.String("error", err.Error()))
	return out
}

// fetchWithRetry calls the source until it answers, reports no data, fails
// permanently, or the attempt budget is spent.
func (m *Materializer) fetchWithRetry(ctx context.Context, log *slog.Logger, date time.Time) ([]domain.NAVObservation, int, error) {
	maxAttempts := m.retry.attempts()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		records, err := m.source.Fetch(ctx, date)
		m.tracer.RecordFetchAttempt(ctx, fetchResult(err), time.Since(start))

		if err == nil || errors.Is(err, ErrNoDataForDate) {
			return records, attempt, err
		}
		if ctx.Err() != nil {
			return nil, attempt, err
		}
		if !IsTransient(err) || attempt >= maxAttempts {
			return nil, attempt, err
		}

		delay := m.retry.Delay(attempt)
		log.WarnContext(ctx, "date_fetch_retry",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		if werr := wait(ctx, delay); werr != nil {
			return nil, attempt, err
		}
	}
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoDataForDate):
		return "no_data"
	case errors.Is(err, ErrNotYetPublished):
		return "not_published"
	case IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}

func notAttempted(d time.Time) domain.DateOutcome {
	return domain.DateOutcome{Date: d, Status: domain.DateStatusNotAttempted}
}
