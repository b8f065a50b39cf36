package exporter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"navpulse/internal/config"
	"navpulse/internal/infrastructure"
	"navpulse/pkg/contracts/domain"
)

// Compression codecs accepted by the Parquet writer.
var compressions = map[string]bool{
	"snappy":       true,
	"zstd":         true,
	"gzip":         true,
	"uncompressed": true,
}

// File kinds
const (
	KindNAVTable     = "nav_table"
	KindSchemeMaster = "scheme_master"
	KindDaily        = "daily"
	KindRunReport    = "run_report"
)

const navTableQuery = `
SELECT scheme_code, scheme_name, date, nav, isin_growth, isin_dividend,
       repurchase_price, sale_price, updated_at
FROM nav_observations
ORDER BY date, scheme_code`

// schemeMasterQuery joins the NAV derived registry with the scheme data
// listing. A scheme known to only one side has the other side's columns null.
const schemeMasterQuery = `
SELECT COALESCE(s.scheme_code, m.scheme_code) AS scheme_code,
       COALESCE(m.scheme_name, s.scheme_name) AS scheme_name,
       m.amc_name, m.scheme_type, m.scheme_category, m.scheme_nav_name,
       m.minimum_amount, m.launch_date, m.closure_date, m.isin_growth, m.isin_dividend,
       s.first_seen_date, s.last_seen_date, COALESCE(s.is_active, false) AS is_active,
       m.first_seen_date AS first_listed_date, m.last_seen_date AS last_listed_date,
       COALESCE(m.is_listed, false) AS is_listed, m.attribute_last_updated
FROM schemes s
FULL OUTER JOIN scheme_metadata m ON m.scheme_code = s.scheme_code
ORDER BY 1`

const dailyQuery = `
SELECT scheme_code, scheme_name, date, nav, isin_growth, isin_dividend,
       repurchase_price, sale_price
FROM nav_observations
WHERE date = DATE '%s'
ORDER BY scheme_code`

// ExportedFile describes one written file
type ExportedFile struct {
	Kind  string `json:"kind"`
	Path  string `json:"path"`
	Rows  int64  `json:"rows"`
	Bytes int64  `json:"bytes"`
}

// ParquetExporter writes the store tables as Parquet files with DuckDB COPY.
type ParquetExporter struct {
	db          *sql.DB
	paths       *config.Paths
	compression string
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger

	// afterCopy runs between COPY and the row count; tests use it to write
	// concurrently with an export.
	afterCopy func()
}

// ParquetOption configures a ParquetExporter
type ParquetOption func(*ParquetExporter)

// WithCompression selects the codec; see compressions.
func WithCompression(c string) ParquetOption {
	return func(e *ParquetExporter) { e.compression = strings.ToLower(c) }
}

// WithExportMetrics records written files on m
func WithExportMetrics(m *infrastructure.BusinessMetrics) ParquetOption {
	return func(e *ParquetExporter) { e.metrics = m }
}

// WithExportLogger sets the logger
func WithExportLogger(l *slog.Logger) ParquetOption {
	return func(e *ParquetExporter) { e.logger = l }
}

// NewParquetExporter creates an exporter reading from db.
func NewParquetExporter(db *sql.DB, paths *config.Paths, opts ...ParquetOption) (*ParquetExporter, error) {
	e := &ParquetExporter{
		db:          db,
		paths:       paths,
		compression: config.DefaultCompression,
	}
	for _, opt := range opts {
		opt(e)
	}
	if !compressions[e.compression] {
		return nil, fmt.Errorf("unsupported parquet compression %q", e.compression)
	}
	if e.logger == nil {
		e.logger = infrastructure.GetLogger()
	}
	return e, nil
}

// ExportAll writes the combined NAV table and the scheme master data.
func (e *ParquetExporter) ExportAll(ctx context.Context) ([]ExportedFile, error) {
	nav, err := e.copyTo(ctx, KindNAVTable, navTableQuery, e.paths.NAVTableFile)
	if err != nil {
		return nil, err
	}
	schemes, err := e.copyTo(ctx, KindSchemeMaster, schemeMasterQuery, e.paths.SchemeMasterFile)
	if err != nil {
		return []ExportedFile{nav}, err
	}
	return []ExportedFile{nav, schemes}, nil
}

// ExportDates writes daily/nav_YYYYMMDD.parquet for each date.
func (e *ParquetExporter) ExportDates(ctx context.Context, dates []time.Time) ([]ExportedFile, error) {
	files := make([]ExportedFile, 0, len(dates))
	for _, d := range dates {
		q := fmt.Sprintf(dailyQuery, domain.FormatDate(d))
		f, err := e.copyTo(ctx, KindDaily, q, e.paths.GetDailyParquetPath(d))
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	return files, nil
}

// copyTo runs COPY (query) TO a temp file beside dest and renames it into
// place. Rows is read back from the written file, so writes landing after the
// COPY do not skew it.
func (e *ParquetExporter) copyTo(ctx context.Context, kind, query, dest string) (ExportedFile, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ExportedFile{}, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp := dest + ".tmp"
	stmt := fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')",
		query, quoteLiteral(tmp), e.compression)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		os.Remove(tmp)
		return ExportedFile{}, fmt.Errorf("export %s: %w", kind, err)
	}
	if e.afterCopy != nil {
		e.afterCopy()
	}

	var rows int64
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM read_parquet('%s')", quoteLiteral(tmp))).Scan(&rows)
	if err != nil {
		os.Remove(tmp)
		return ExportedFile{}, fmt.Errorf("count %s rows: %w", kind, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return ExportedFile{}, fmt.Errorf("export %s: %w", kind, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return ExportedFile{}, err
	}

	f := ExportedFile{Kind: kind, Path: dest, Rows: rows, Bytes: info.Size()}
	e.record(ctx, f)
	e.logger.InfoContext(ctx, "export_written",
		slog.String("kind", kind),
		slog.String("path", dest),
		slog.Int64("rows", rows),
		slog.Int64("bytes", f.Bytes),
		slog.String("compression", e.compression),
		slog.Duration("duration", time.Since(start)))
	return f, nil
}

func (e *ParquetExporter) record(ctx context.Context, f ExportedFile) {
	if e.metrics == nil {
		return
	}
	e.metrics.ExportFilesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", f.Kind)))
}

// quoteLiteral escapes s for use inside a single-quoted SQL string.
func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
