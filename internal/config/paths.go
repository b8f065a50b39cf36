package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Paths contains all the application paths
// This is the single source of truth for file locations in the application
type Paths struct {
	BaseDir      string
	DataDir      string
	ProcessedDir string
	ReportsDir   string
	LogsDir      string
	DatabaseFile string

	// Parquet exports
	NAVCombinedDir    string
	SchemeMetadataDir string
	DailyDir          string
	NAVTableFile      string
	SchemeMasterFile  string
}

// ExecutableDir returns the directory containing the running binary with
// symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return filepath.Dir(exe), nil
}

// Paths resolves the storage layout. Relative directories are anchored at
// Storage.BaseDir, or the executable directory when that is empty.
//
//	<base>/
//	  ├── data/
//	  │   ├── nav.duckdb
//	  │   ├── processed/
//	  │   │   ├── nav_combined/raw_nav_table.parquet
//	  │   │   ├── scheme_metadata/scheme_masterdata.parquet
//	  │   │   └── daily/nav_YYYYMMDD.parquet
//	  │   └── reports/
//	  └── logs/
func (c *Config) Paths() (*Paths, error) {
	base := c.Storage.BaseDir
	if base == "" {
		dir, err := ExecutableDir()
		if err != nil {
			return nil, err
		}
		base = dir
	}
	return NewPaths(base, c.Storage.DataDir, c.Storage.DatabaseFile), nil
}

// NewPaths builds the layout under baseDir.
func NewPaths(baseDir, dataDir, databaseFile string) *Paths {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	if databaseFile == "" {
		databaseFile = DefaultDatabaseFile
	}

	data := anchor(baseDir, dataDir)
	processed := filepath.Join(data, "processed")
	combined := filepath.Join(processed, "nav_combined")
	metadata := filepath.Join(processed, "scheme_metadata")

	return &Paths{
		BaseDir:           baseDir,
		DataDir:           data,
		ProcessedDir:      processed,
		ReportsDir:        filepath.Join(data, "reports"),
		LogsDir:           filepath.Join(baseDir, DefaultLogsDir),
		DatabaseFile:      anchor(data, databaseFile),
		NAVCombinedDir:    combined,
		SchemeMetadataDir: metadata,
		DailyDir:          filepath.Join(processed, "daily"),
		NAVTableFile:      filepath.Join(combined, "raw_nav_table.parquet"),
		SchemeMasterFile:  filepath.Join(metadata, "scheme_masterdata.parquet"),
	}
}

func anchor(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.ProcessedDir,
		p.NAVCombinedDir,
		p.SchemeMetadataDir,
		p.ReportsDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetProcessedPath returns the path for a file under the processed dir
func (p *Paths) GetProcessedPath(filename string) string {
	return filepath.Join(p.ProcessedDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetDailyParquetPath returns the per-date export, e.g. daily/nav_20240115.parquet
func (p *Paths) GetDailyParquetPath(date time.Time) string {
	return filepath.Join(p.DailyDir, fmt.Sprintf("nav_%s.parquet", date.Format("20060102")))
}

// GetRunReportPath returns the run report path for a run started at ts.
func (p *Paths) GetRunReportPath(ts time.Time) string {
	return p.GetReportPath(fmt.Sprintf("materialization_%s.csv", ts.UTC().Format("20060102_150405")))
}

// GetValidationReportPath returns the completeness report path for day.
func (p *Paths) GetValidationReportPath(day time.Time) string {
	return p.GetReportPath(fmt.Sprintf("nav_validation_%s.csv", day.UTC().Format("20060102")))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved layout
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("path_resolution",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("files",
			slog.String("database", p.DatabaseFile),
			slog.Bool("database_exists", FileExists(p.DatabaseFile)),
			slog.String("nav_table", p.NAVTableFile),
			slog.String("scheme_master", p.SchemeMasterFile),
		))
}
