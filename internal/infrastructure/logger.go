package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"navpulse/internal/config"
	"navpulse/pkg/contracts/domain"
)

// Process-wide logger state. InitializeLogger fills it once per process;
// ResetLoggerForTesting clears it.
var (
	loggerMu  sync.Mutex
	appLogger *slog.Logger
	logFile   *os.File
)

type contextKey string

// TraceIDContextKey carries the trace ID of a request or run.
const TraceIDContextKey contextKey = "trace_id"

// InitializeLogger builds the process logger from cfg and installs it as the
// slog default. Later calls return the first logger.
func InitializeLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if appLogger != nil {
		return appLogger, nil
	}

	var out io.Writer = os.Stdout
	if mode := strings.ToLower(cfg.Output); mode == "file" || mode == "both" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		logFile = f
		out = f
		if mode == "both" {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	appLogger = newLogger(out, cfg.Level, true)
	slog.SetDefault(appLogger)
	return appLogger, nil
}

// GetLogger returns the process logger, or the slog default before
// InitializeLogger ran.
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if appLogger == nil {
		return slog.Default()
	}
	return appLogger
}

// NewJSONLogger builds a trace-aware JSON logger writing to w.
func NewJSONLogger(w io.Writer, level string) *slog.Logger {
	return newLogger(w, level, false)
}

func newLogger(w io.Writer, level string, withSource bool) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: withSource, Level: parseLogLevel(level)})
	return slog.New(&traceHandler{Handler: h})
}

// traceHandler copies the context trace ID onto every record.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLogLevel maps the logging.level values; unknown ones mean info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTraceID returns ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// GetTraceID returns the trace ID carried by ctx, or "".
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDContextKey).(string)
	return traceID
}

// WithRun tags every record of logger with the materialization run ID.
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(slog.String("run_id", runID))
}

// WithDate tags every record of logger with a calendar date.
func WithDate(logger *slog.Logger, date time.Time) *slog.Logger {
	return logger.With(slog.String("date", domain.FormatDate(date)))
}

// CloseLogFile closes the log file opened by InitializeLogger, if any.
func CloseLogFile() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ResetLoggerForTesting drops the process logger so the next
// InitializeLogger builds a fresh one.
func ResetLoggerForTesting() {
	_ = CloseLogFile()
	loggerMu.Lock()
	appLogger = nil
	loggerMu.Unlock()
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
