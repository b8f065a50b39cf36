// Command navsync runs one incremental NAV materialization and exits.
//
// Without -from/-to it fills from the day after the latest stored date (or
// the configured history start) through yesterday. Exit status is 0 when
// every date settled, 1 when any date failed or was not attempted, and 2 on
// fatal errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"navpulse/internal/app"
	"navpulse/internal/config"
	"navpulse/internal/exporter"
	"navpulse/internal/infrastructure"
	"navpulse/internal/services"
	"navpulse/pkg/contracts"
	"navpulse/pkg/contracts/domain"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

type options struct {
	configFile  string
	from        string
	to          string
	concurrency int
	noExport    bool
	noUpload    bool
	version     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("navsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "config file (defaults to $NAV_CONFIG_FILE or ./config.yaml)")
	fs.StringVar(&opts.from, "from", "", "first date to materialize (YYYY-MM-DD)")
	fs.StringVar(&opts.to, "to", "", "last date to materialize (YYYY-MM-DD)")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "dates fetched in parallel (overrides config)")
	fs.BoolVar(&opts.noExport, "no-export", false, "skip the Parquet export")
	fs.BoolVar(&opts.noUpload, "no-upload", false, "skip the object store upload")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if (opts.from == "") != (opts.to == "") {
		return opts, errors.New("-from and -to must be given together")
	}
	if opts.concurrency < 0 || opts.concurrency > config.MaxConcurrency {
		return opts, fmt.Errorf("-concurrency must be between 1 and %d", config.MaxConcurrency)
	}
	return opts, nil
}

// rangeFromFlags returns nil when no explicit range was given.
func rangeFromFlags(opts options) (*domain.DateRange, error) {
	if opts.from == "" {
		return nil, nil
	}
	from, err := domain.ParseDate(opts.from)
	if err != nil {
		return nil, fmt.Errorf("invalid -from: %w", err)
	}
	to, err := domain.ParseDate(opts.to)
	if err != nil {
		return nil, fmt.Errorf("invalid -to: %w", err)
	}
	r := domain.NewDateRange(from, to)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitFatal
	}
	if opts.version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString("navsync"))
		return exitOK
	}

	rng, err := rangeFromFlags(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	cfg, err := loadConfig(opts.configFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}
	if opts.concurrency > 0 {
		cfg.Materializer.Concurrency = opts.concurrency
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFatal
	}
	defer infrastructure.CloseLogFile()
	logger = infrastructure.WithComponent(logger, "navsync")

	paths, err := cfg.Paths()
	if err == nil {
		err = paths.EnsureDirectories()
	}
	if err != nil {
		logger.Error("paths_failed", slog.String("error", err.Error()))
		return exitFatal
	}

	providers, err := infrastructure.InitializeOTel(
		infrastructure.OTelConfigFromConfig(cfg.Telemetry, contracts.Version), logger)
	if err != nil {
		logger.Error("otel_init_failed", slog.String("error", err.Error()))
		return exitFatal
	}
	defer func() {
		if err := providers.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("otel_shutdown_failed", slog.String("error", err.Error()))
		}
	}()

	var metrics *infrastructure.BusinessMetrics
	if providers.Meter != nil {
		if metrics, err = infrastructure.CreateBusinessMetrics(providers.Meter); err != nil {
			logger.Error("metrics_init_failed", slog.String("error", err.Error()))
			return exitFatal
		}
	}

	pipeline, err := app.NewPipeline(ctx, cfg, paths, metrics, logger)
	if err != nil {
		logger.Error("pipeline_init_failed", slog.String("error", err.Error()))
		return exitFatal
	}
	defer pipeline.Close()

	report, err := pipeline.Service.Run(ctx, services.RunOptions{
		Range:      rng,
		SkipExport: opts.noExport,
		SkipUpload: opts.noUpload,
	})
	if err != nil {
		logger.Error("run_failed", slog.String("error", err.Error()))
		return exitFatal
	}

	if path, err := pipeline.Reporter.WriteSummary(report.Result); err != nil {
		logger.Warn("summary_write_failed", slog.String("error", err.Error()))
	} else {
		logger.Info("summary_written", slog.String("path", path))
	}
	printSummary(stdout, report)

	if !report.Succeeded() {
		return exitPartial
	}
	return exitOK
}

func printSummary(w io.Writer, report *services.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range exporter.SummaryRows(report.Result) {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	fmt.Fprintf(tw, "exports\t%d\n", len(report.Exports))
	fmt.Fprintf(tw, "uploads\t%d\n", len(report.Uploads))
	if report.ReportPath != "" {
		fmt.Fprintf(tw, "report\t%s\n", report.ReportPath)
	}
	if c := report.Completeness; c != nil {
		fmt.Fprintf(tw, "incomplete_dates\t%d\n", c.Incomplete)
	}
	if report.CompletenessPath != "" {
		fmt.Fprintf(tw, "completeness\t%s\n", report.CompletenessPath)
	}
	if m := report.Metadata; m != nil {
		fmt.Fprintf(tw, "schemes_listed\t%d new, %d updated, %d delisted\n", m.New, m.Updated, m.Delisted)
	}
	if report.MetadataError != "" {
		fmt.Fprintf(tw, "metadata_error\t%s\n", report.MetadataError)
	}
	if report.ExportError != "" {
		fmt.Fprintf(tw, "export_error\t%s\n", report.ExportError)
	}
	if report.UploadError != "" {
		fmt.Fprintf(tw, "upload_error\t%s\n", report.UploadError)
	}
	for _, f := range report.Result.Failed {
		fmt.Fprintf(tw, "failed\t%s %s\n", domain.FormatDate(f.Date), f.Error)
	}
	_ = tw.Flush()
}
