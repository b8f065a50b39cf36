package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"navpulse/internal/config"
)

// Pinger is anything whose availability can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunState exposes whether a materialize run is executing.
type RunState interface {
	Running() bool
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	commit    string
	paths     *config.Paths
	store     Pinger
	runs      RunState
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// BuildInfo carries link-time version metadata
type BuildInfo struct {
	Version   string
	BuildTime string
	Commit    string
}

// NewHealthService creates a new health service with injected dependencies.
// store, runs and paths may be nil.
func NewHealthService(build BuildInfo, paths *config.Paths, store Pinger, runs RunState, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("health_service_initialized",
		slog.String("version", build.Version),
		slog.String("build_time", build.BuildTime),
		slog.String("commit", build.Commit))

	return &HealthService{
		version:   build.Version,
		buildTime: build.BuildTime,
		commit:    build.Commit,
		paths:     paths,
		store:     store,
		runs:      runs,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"store":        hs.checkStoreHealth(ctx),
			"data":         hs.checkDataHealth(),
			"materializer": hs.checkRunHealth(),
		},
	}

	for name, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "readiness_check_failed",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.startTime).Seconds(),
		"start_time": hs.startTime.Format(time.RFC3339),
	}

	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	if hs.commit != "" {
		result["commit"] = hs.commit
	}

	return result
}

func (hs *HealthService) checkStoreHealth(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: "store not initialized"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hs.store.Ping(pingCtx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("store ping failed: %v", err)}
	}
	return ServiceHealth{Status: "ready"}
}

// checkRunHealth is informational; a busy materializer is still ready.
func (hs *HealthService) checkRunHealth() ServiceHealth {
	if hs.runs == nil {
		return ServiceHealth{Status: "ready", Message: "no run service"}
	}
	if hs.runs.Running() {
		return ServiceHealth{Status: "ready", Message: "run in progress"}
	}
	return ServiceHealth{Status: "ready", Message: "idle"}
}

// checkDataHealth checks that the data directory exists and is writable
func (hs *HealthService) checkDataHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "ready", Message: "no data directory configured"}
	}

	dataDir := hs.paths.DataDir
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("data directory not found: %s", dataDir),
		}
	}

	marker, err := os.CreateTemp(dataDir, ".ready-*")
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("cannot write to data directory: %v", err),
		}
	}
	marker.Close()
	os.Remove(filepath.Clean(marker.Name()))

	return ServiceHealth{Status: "ready"}
}
