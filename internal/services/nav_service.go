package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navpulse/internal/exporter"
	"navpulse/internal/infrastructure"
	"navpulse/internal/objectstore"
	"navpulse/pkg/contracts/domain"
)

// Materializer runs the incremental fill for a range.
type Materializer interface {
	Materialize(ctx context.Context, r domain.DateRange) (*domain.MaterializationResult, error)
}

// CoverageStore answers coverage questions about the record store.
type CoverageStore interface {
	ExistingDates(ctx context.Context, r domain.DateRange) (domain.DateSet, error)
	Stats(ctx context.Context) (domain.StoreStats, error)
	Ping(ctx context.Context) error
}

// Exporter writes columnar files from the store.
type Exporter interface {
	ExportAll(ctx context.Context) ([]exporter.ExportedFile, error)
	ExportDates(ctx context.Context, dates []time.Time) ([]exporter.ExportedFile, error)
}

// Reporter writes the per-run report.
type Reporter interface {
	Write(result *domain.MaterializationResult) (string, error)
}

// Uploader copies exported files to object storage.
type Uploader interface {
	UploadExport(ctx context.Context, path string, ts time.Time, suffix string) (objectstore.Upload, error)
}

// MetadataSource downloads the portal's scheme data file.
type MetadataSource interface {
	SchemeMetadata(ctx context.Context) ([]domain.SchemeMetadata, error)
}

// MetadataStore merges scheme data into the scheme master data.
type MetadataStore interface {
	MergeSchemeMetadata(ctx context.Context, schemes []domain.SchemeMetadata, today time.Time) (domain.MetadataMerge, error)
}

// SchemeCounter reports the stored scheme count of every date.
type SchemeCounter interface {
	DailySchemeCounts(ctx context.Context) ([]domain.DailySchemeCount, error)
}

// CompletenessWriter writes the per-date completeness report.
type CompletenessWriter interface {
	WriteCompleteness(rows []exporter.CompletenessRow, at time.Time) (string, error)
}

// RunOptions selects the range and the post-materialize steps of a run.
type RunOptions struct {
	// Range defaults to DefaultRange when nil.
	Range      *domain.DateRange
	SkipExport bool
	SkipUpload bool
}

// RunReport is the outcome of one orchestrated run.
type RunReport struct {
	Result      *domain.MaterializationResult `json:"result"`
	Exports     []exporter.ExportedFile       `json:"exports,omitempty"`
	ReportPath  string                        `json:"report_path,omitempty"`
	Uploads     []objectstore.Upload          `json:"uploads,omitempty"`
	ExportError string                        `json:"export_error,omitempty"`
	UploadError string                        `json:"upload_error,omitempty"`

	Metadata      *domain.MetadataMerge `json:"metadata,omitempty"`
	MetadataError string                `json:"metadata_error,omitempty"`

	Completeness     *exporter.CompletenessSummary `json:"completeness,omitempty"`
	CompletenessPath string                        `json:"completeness_path,omitempty"`
}

// Succeeded is true when every date was settled and no side step failed.
// Incomplete dates in the completeness report do not fail a run.
func (r *RunReport) Succeeded() bool {
	return r.Result != nil && r.Result.Succeeded() &&
		r.ExportError == "" && r.UploadError == "" && r.MetadataError == ""
}

// CoverageReport lists which dates of a range are settled in the store.
type CoverageReport struct {
	Range   domain.DateRange `json:"range"`
	Present []string         `json:"present"`
	Missing []string         `json:"missing"`
}

// Complete reports whether no date is missing.
func (c *CoverageReport) Complete() bool { return len(c.Missing) == 0 }

// NAVService orchestrates materialize, export, report and upload. Only one
// run executes at a time.
type NAVService struct {
	materializer Materializer
	store        CoverageStore
	exporter     Exporter
	reporter     Reporter
	uploader     Uploader
	metaSource   MetadataSource
	metaStore    MetadataStore
	counter      SchemeCounter
	completeness CompletenessWriter
	window       int
	threshold    float64
	historyStart time.Time
	lookbackDays int
	exportDaily  bool
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
	last    *RunReport
}

// NAVServiceOption configures a NAVService
type NAVServiceOption func(*NAVService)

// WithExporter enables Parquet export after each run.
func WithExporter(e Exporter, daily bool) NAVServiceOption {
	return func(s *NAVService) {
		s.exporter = e
		s.exportDaily = daily
	}
}

// WithReporter enables the per-run CSV report.
func WithReporter(r Reporter) NAVServiceOption {
	return func(s *NAVService) { s.reporter = r }
}

// WithUploader enables uploads of exported files.
func WithUploader(u Uploader) NAVServiceOption {
	return func(s *NAVService) { s.uploader = u }
}

// WithMetadataRefresh merges the scheme data file into the master data
// after each run.
func WithMetadataRefresh(src MetadataSource, store MetadataStore) NAVServiceOption {
	return func(s *NAVService) {
		s.metaSource = src
		s.metaStore = store
	}
}

// WithCompletenessReport writes the completeness report after each run,
// rating every stored date against the window dates before it.
func WithCompletenessReport(counter SchemeCounter, w CompletenessWriter, window int, threshold float64) NAVServiceOption {
	return func(s *NAVService) {
		s.counter = counter
		s.completeness = w
		s.window = window
		s.threshold = threshold
		if s.threshold <= 0 {
			s.threshold = exporter.DefaultCompletenessThreshold
		}
	}
}

// WithHistoryStart sets the first date materialized into an empty store.
func WithHistoryStart(d time.Time) NAVServiceOption {
	return func(s *NAVService) { s.historyStart = domain.NormalizeDate(d) }
}

// WithLookbackDays limits the default range to the last n published days.
// Zero reaches back to the history start.
func WithLookbackDays(n int) NAVServiceOption {
	return func(s *NAVService) { s.lookbackDays = n }
}

// WithServiceClock overrides time.Now.
func WithServiceClock(now func() time.Time) NAVServiceOption {
	return func(s *NAVService) { s.now = now }
}

// WithServiceLogger sets the logger
func WithServiceLogger(l *slog.Logger) NAVServiceOption {
	return func(s *NAVService) { s.logger = l }
}

// NewNAVService creates the service.
func NewNAVService(m Materializer, store CoverageStore, opts ...NAVServiceOption) *NAVService {
	s := &NAVService{
		materializer: m,
		store:        store,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = infrastructure.GetLogger()
	}
	return s
}

// PublishedThrough is the last date the portal can have published:
// yesterday in UTC.
func (s *NAVService) PublishedThrough() time.Time {
	return domain.NormalizeDate(s.now().UTC()).AddDate(0, 0, -1)
}

// DefaultRange spans the history start, or the lookback window when one is
// set, through PublishedThrough. The store coverage decides what inside it
// is fetched, so a date that failed earlier is asked for again on every
// scheduled run until it settles.
func (s *NAVService) DefaultRange(ctx context.Context) (domain.DateRange, error) {
	end := s.PublishedThrough()

	start := s.historyStart
	if s.lookbackDays > 0 {
		window := end.AddDate(0, 0, 1-s.lookbackDays)
		if start.IsZero() || window.After(start) {
			start = window
		}
	}
	if start.IsZero() || start.After(end) {
		start = end
	}
	return domain.NewDateRange(start, end), nil
}

// clipToPublished trims the end of r to PublishedThrough. A range that
// starts after it has nothing the portal could answer and is rejected.
func (s *NAVService) clipToPublished(ctx context.Context, r domain.DateRange) (domain.DateRange, error) {
	if r.Validate() != nil {
		// the materializer reports the invalid range
		return r, nil
	}
	published := s.PublishedThrough()
	if r.Start.After(published) {
		return r, fmt.Errorf("%w: range %s starts after the last published date %s",
			ErrInvalidInput, r, domain.FormatDate(published))
	}
	if r.End.After(published) {
		s.logger.WarnContext(ctx, "range_clipped",
			slog.String("requested_to", domain.FormatDate(r.End)),
			slog.String("to", domain.FormatDate(published)))
		r = domain.NewDateRange(r.Start, published)
	}
	return r, nil
}

// Running reports whether a run is in progress.
func (s *NAVService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the most recent completed run.
func (s *NAVService) LastRun() (*RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last != nil
}

func (s *NAVService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *NAVService) release(report *RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if report != nil {
		s.last = report
	}
}

// Run materializes the range and then exports, reports and uploads. Export
// and upload failures are recorded on the report and never undo the
// materialized store.
func (s *NAVService) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if !s.acquire() {
		return nil, ErrRunInProgress
	}
	var report *RunReport
	defer func() { s.release(report) }()

	ctx = infrastructure.EnsureTraceID(ctx)

	var (
		r   domain.DateRange
		err error
	)
	if opts.Range != nil {
		r, err = s.clipToPublished(ctx, *opts.Range)
	} else {
		r, err = s.DefaultRange(ctx)
	}
	if err != nil {
		return nil, err
	}

	result, err := s.materializer.Materialize(ctx, r)
	if err != nil {
		return nil, err
	}
	report = &RunReport{Result: result}

	// side steps finish even when the run was cancelled
	sideCtx := context.WithoutCancel(ctx)

	if s.reporter != nil {
		path, err := s.reporter.Write(result)
		if err != nil {
			s.logger.ErrorContext(sideCtx, "run_report_failed", slog.String("error", err.Error()))
		} else {
			report.ReportPath = path
		}
	}

	if s.counter != nil && s.completeness != nil {
		s.rateCompleteness(sideCtx, report)
	}

	if s.metaSource != nil && s.metaStore != nil && !result.Cancelled {
		s.refreshMetadata(sideCtx, report)
	}

	if s.exporter != nil && !opts.SkipExport {
		s.export(sideCtx, report)
	}

	if s.uploader != nil && !opts.SkipUpload && report.ExportError == "" {
		s.upload(sideCtx, report)
	}

	infrastructure.WithRun(s.logger, result.RunID).InfoContext(sideCtx, "run_completed",
		slog.Bool("succeeded", report.Succeeded()),
		slog.Int("exports", len(report.Exports)),
		slog.Int("uploads", len(report.Uploads)))

	return report, nil
}

func (s *NAVService) refreshMetadata(ctx context.Context, report *RunReport) {
	schemes, err := s.metaSource.SchemeMetadata(ctx)
	if err == nil {
		var merged domain.MetadataMerge
		merged, err = s.metaStore.MergeSchemeMetadata(ctx, schemes, domain.NormalizeDate(s.now().UTC()))
		if err == nil {
			report.Metadata = &merged
			s.logger.InfoContext(ctx, "scheme_metadata_merged",
				slog.Int("received", merged.Received),
				slog.Int("new", merged.New),
				slog.Int("updated", merged.Updated),
				slog.Int("delisted", merged.Delisted))
			return
		}
	}
	report.MetadataError = err.Error()
	s.logger.ErrorContext(ctx, "scheme_metadata_failed", slog.String("error", err.Error()))
}

func (s *NAVService) rateCompleteness(ctx context.Context, report *RunReport) {
	counts, err := s.counter.DailySchemeCounts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "completeness_report_failed", slog.String("error", err.Error()))
		return
	}
	if len(counts) == 0 {
		return
	}

	rows := exporter.Completeness(counts, s.window, s.threshold)
	summary := exporter.SummarizeCompleteness(rows)
	report.Completeness = &summary

	path, err := s.completeness.WriteCompleteness(rows, report.Result.StartedAt)
	if err != nil {
		s.logger.ErrorContext(ctx, "completeness_report_failed", slog.String("error", err.Error()))
		return
	}
	report.CompletenessPath = path

	if summary.Incomplete > 0 {
		s.logger.WarnContext(ctx, "incomplete_dates",
			slog.Int("count", summary.Incomplete),
			slog.Any("dates", summary.IncompleteDates))
	}
}

func (s *NAVService) export(ctx context.Context, report *RunReport) {
	files, err := s.exporter.ExportAll(ctx)
	report.Exports = append(report.Exports, files...)
	if err == nil && s.exportDaily && len(report.Result.Written) > 0 {
		var daily []exporter.ExportedFile
		daily, err = s.exporter.ExportDates(ctx, report.Result.Written)
		report.Exports = append(report.Exports, daily...)
	}
	if err != nil {
		report.ExportError = err.Error()
		s.logger.ErrorContext(ctx, "export_failed", slog.String("error", err.Error()))
	}
}

func (s *NAVService) upload(ctx context.Context, report *RunReport) {
	paths := make([]string, 0, len(report.Exports)+2)
	for _, f := range report.Exports {
		paths = append(paths, f.Path)
	}
	if report.ReportPath != "" {
		paths = append(paths, report.ReportPath)
	}
	if report.CompletenessPath != "" {
		paths = append(paths, report.CompletenessPath)
	}

	var errs []error
	for _, p := range paths {
		up, err := s.uploader.UploadExport(ctx, p, report.Result.StartedAt, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Uploads = append(report.Uploads, up)
	}
	if err := errors.Join(errs...); err != nil {
		report.UploadError = err.Error()
	}
}

// Coverage lists present and missing dates of r.
func (s *NAVService) Coverage(ctx context.Context, r domain.DateRange) (*CoverageReport, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	existing, err := s.store.ExistingDates(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("existing dates: %w", err)
	}

	report := &CoverageReport{Range: r, Present: []string{}, Missing: []string{}}
	for _, d := range r.Days() {
		if existing.Has(d) {
			report.Present = append(report.Present, domain.FormatDate(d))
		} else {
			report.Missing = append(report.Missing, domain.FormatDate(d))
		}
	}
	return report, nil
}

// Stats returns store totals.
func (s *NAVService) Stats(ctx context.Context) (domain.StoreStats, error) {
	return s.store.Stats(ctx)
}

// Ping checks the store.
func (s *NAVService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
