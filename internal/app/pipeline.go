package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"navpulse/internal/amfi"
	"navpulse/internal/config"
	"navpulse/internal/exporter"
	"navpulse/internal/infrastructure"
	"navpulse/internal/materializer"
	"navpulse/internal/objectstore"
	"navpulse/internal/services"
	"navpulse/internal/store/duckdb"
	"navpulse/pkg/contracts/domain"
)

// Pipeline is the materialize chain shared by navd and navsync: the store,
// the portal source and the service that orchestrates runs over them.
type Pipeline struct {
	Store    *duckdb.Store
	Source   *amfi.Source
	Reporter *exporter.RunReporter
	Uploader *objectstore.Uploader
	Service  *services.NAVService

	closeOnce sync.Once
	closeErr  error
}

// NewPipeline opens the store and wires every run step enabled in cfg.
// metrics may be nil. The caller owns Close.
func NewPipeline(ctx context.Context, cfg *config.Config, paths *config.Paths, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) (*Pipeline, error) {
	historyStart, err := domain.ParseDate(cfg.Source.HistoryStart)
	if err != nil {
		return nil, fmt.Errorf("invalid history start: %w", err)
	}

	store, err := duckdb.Open(ctx, paths.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	p := &Pipeline{Store: store}
	if err := p.wire(cfg, paths, metrics, logger, historyStart); err != nil {
		_ = store.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) wire(cfg *config.Config, paths *config.Paths, metrics *infrastructure.BusinessMetrics, logger *slog.Logger, historyStart time.Time) error {
	client, err := amfi.NewClient(amfi.ClientConfig{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
		UserAgent:         cfg.Source.UserAgent,
	})
	if err != nil {
		return fmt.Errorf("failed to create amfi client: %w", err)
	}
	p.Source = amfi.NewSource(client,
		amfi.WithSkipWeekends(cfg.Source.SkipWeekends),
		amfi.WithSourceLogger(infrastructure.WithComponent(logger, "amfi")))

	m := materializer.New(p.Store, p.Source,
		materializer.WithConcurrency(cfg.Materializer.Concurrency),
		materializer.WithRetry(materializer.RetryConfig{
			MaxAttempts:  cfg.Materializer.MaxAttempts,
			InitialDelay: cfg.Materializer.InitialDelay,
			MaxDelay:     cfg.Materializer.MaxDelay,
			Multiplier:   cfg.Materializer.Multiplier,
		}),
		materializer.WithTracer(materializer.NewRunTracerWithMetrics(metrics)),
		materializer.WithLogger(infrastructure.WithComponent(logger, "materializer")))

	p.Reporter = exporter.NewRunReporter(exporter.NewCSVWriter(paths).WithLogger(logger))

	opts := []services.NAVServiceOption{
		services.WithHistoryStart(historyStart),
		services.WithLookbackDays(cfg.Materializer.LookbackDays),
		services.WithReporter(p.Reporter),
		services.WithServiceLogger(infrastructure.WithComponent(logger, "nav_service")),
	}

	if cfg.Storage.Export {
		exp, err := exporter.NewParquetExporter(p.Store.DB(), paths,
			exporter.WithCompression(cfg.Storage.Compression),
			exporter.WithExportMetrics(metrics),
			exporter.WithExportLogger(infrastructure.WithComponent(logger, "exporter")))
		if err != nil {
			return fmt.Errorf("failed to create parquet exporter: %w", err)
		}
		opts = append(opts, services.WithExporter(exp, cfg.Storage.ExportDaily))
	}

	if cfg.Source.FetchMetadata {
		opts = append(opts, services.WithMetadataRefresh(p.Source, p.Store))
	}

	if cfg.Validation.Enabled {
		opts = append(opts, services.WithCompletenessReport(p.Store, p.Reporter,
			cfg.Validation.Window, cfg.Validation.Threshold))
	}

	if cfg.ObjectStore.Enabled {
		up, err := objectstore.New(objectstore.Config{
			Endpoint:        cfg.ObjectStore.ResolvedEndpoint(),
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			Folder:          cfg.ObjectStore.Folder,
		},
			objectstore.WithMetrics(metrics),
			objectstore.WithLogger(infrastructure.WithComponent(logger, "objectstore")))
		if err != nil {
			return fmt.Errorf("failed to create object store uploader: %w", err)
		}
		p.Uploader = up
		opts = append(opts, services.WithUploader(up))
	}

	p.Service = services.NewNAVService(m, p.Store, opts...)

	logger.Info("pipeline_initialized",
		slog.String("database", p.Store.Path()),
		slog.Int("concurrency", cfg.Materializer.Concurrency),
		slog.Bool("export", cfg.Storage.Export),
		slog.Bool("export_daily", cfg.Storage.ExportDaily),
		slog.Bool("fetch_metadata", cfg.Source.FetchMetadata),
		slog.Bool("completeness_report", cfg.Validation.Enabled),
		slog.Bool("upload", p.Uploader != nil))
	return nil
}

// Close releases the store. Later calls return the first result.
func (p *Pipeline) Close() error {
	if p == nil || p.Store == nil {
		return nil
	}
	p.closeOnce.Do(func() { p.closeErr = p.Store.Close() })
	return p.closeErr
}
