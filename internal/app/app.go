package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"navpulse/internal/config"
	apierrors "navpulse/internal/errors"
	"navpulse/internal/infrastructure"
	customMiddleware "navpulse/internal/middleware"
	"navpulse/internal/services"
	handlers "navpulse/internal/transport/http"
	"navpulse/pkg/contracts"
)

// AppName identifies the HTTP service in logs and telemetry
const AppName = "navd"

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Pipeline      *Pipeline
	HealthService *services.HealthService
	ErrorHandler  *apierrors.ErrorHandler
	Router        *chi.Mux
	Server        *http.Server
}

// NewApplication wires the application from cfg. A nil cfg is loaded from
// the config file and NAV_* environment variables.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = infrastructure.WithComponent(logger, AppName)

	paths, err := cfg.Paths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}
	paths.LogPathResolution(logger)

	app := &Application{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
	}

	if err := app.initializeTelemetry(); err != nil {
		return nil, err
	}

	if err := app.initializeServices(ctx); err != nil {
		app.shutdownTelemetry(ctx)
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

func (a *Application) initializeTelemetry() error {
	providers, err := infrastructure.InitializeOTel(
		infrastructure.OTelConfigFromConfig(a.Config.Telemetry, contracts.Version), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers

	if providers.Meter != nil {
		metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
		if err != nil {
			return fmt.Errorf("failed to create business metrics: %w", err)
		}
		a.Metrics = metrics
	}
	return nil
}

func (a *Application) initializeServices(ctx context.Context) error {
	pipeline, err := NewPipeline(ctx, a.Config, a.Paths, a.Metrics, a.Logger)
	if err != nil {
		return err
	}
	a.Pipeline = pipeline

	a.HealthService = services.NewHealthService(services.BuildInfo{
		Version:   contracts.Version,
		BuildTime: contracts.BuildTime,
		Commit:    contracts.GitCommit,
	}, a.Paths, pipeline.Store, pipeline.Service, a.Logger)

	a.ErrorHandler = apierrors.NewErrorHandler(a.Logger, a.Config.Logging.Level == "debug")
	return nil
}

// setupRouter configures the chi router.
// Middleware order: OTel → RequestID → RealIP → Logger → Recoverer.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.ErrorHandler))
	r.Use(customMiddleware.StripSlashes)
	r.Use(customMiddleware.SecurityHeaders)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/api/health", healthHandler.HealthCheck)
	r.Get("/api/health/live", healthHandler.LivenessCheck)
	r.Get("/api/health/ready", healthHandler.ReadinessCheck)
	r.Get("/api/version", healthHandler.Version)

	navHandler := handlers.NewNAVHandler(a.Pipeline.Service, a.Config.Server.RunTimeout, a.Logger, a.ErrorHandler)
	r.Mount("/api/v1", navHandler.Routes())

	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.ErrorHandler))

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Start serves in the background. A listener failure calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "application_starting",
		slog.String("name", AppName),
		slog.String("version", contracts.Version),
		slog.String("commit", contracts.GitCommit),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server_error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application_started",
		slog.String("address", a.Server.Addr))
	return nil
}

// Stop drains the server, then closes the store and flushes telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "application_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.Pipeline.Service.Running() {
		a.Logger.WarnContext(ctx, "run_in_progress_at_shutdown")
	}

	if err := a.Pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close error: %w", err))
	}

	a.shutdownTelemetry(shutdownCtx)

	a.Logger.InfoContext(ctx, "application_stopped")
	return errors.Join(errs...)
}

func (a *Application) shutdownTelemetry(ctx context.Context) {
	if a.OTelProviders == nil {
		return
	}
	if err := a.OTelProviders.Shutdown(ctx); err != nil {
		a.Logger.ErrorContext(ctx, "otel_shutdown_failed", slog.String("error", err.Error()))
	}
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, stop); err != nil {
		return err
	}

	<-ctx.Done()
	a.Logger.InfoContext(ctx, "shutdown_signal_received")

	return a.Stop(ctx)
}
