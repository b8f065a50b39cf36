package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Source       SourceConfig       `yaml:"source" envconfig:"SOURCE"`
	Materializer MaterializerConfig `yaml:"materializer" envconfig:"MATERIALIZER"`
	Storage      StorageConfig      `yaml:"storage" envconfig:"STORAGE"`
	Validation   ValidationConfig   `yaml:"validation" envconfig:"VALIDATION"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store" envconfig:"OBJECT_STORE"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gt=0"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// RunTimeout bounds a materialize run started through the API.
	RunTimeout time.Duration `yaml:"run_timeout" envconfig:"RUN_TIMEOUT" validate:"gt=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// SourceConfig configures the AMFI portal client
type SourceConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gte=0"`
	Burst             int           `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
	UserAgent         string        `yaml:"user_agent" envconfig:"USER_AGENT"`
	SkipWeekends      bool          `yaml:"skip_weekends" envconfig:"SKIP_WEEKENDS"`
	// HistoryStart is the first date materialized into an empty store.
	HistoryStart string `yaml:"history_start" envconfig:"HISTORY_START" validate:"required,datetime=2006-01-02"`
	// FetchMetadata merges the scheme data file into the master data after
	// every run.
	FetchMetadata bool `yaml:"fetch_metadata" envconfig:"FETCH_METADATA"`
}

// MaterializerConfig holds retry and worker pool settings
type MaterializerConfig struct {
	Concurrency  int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1,max=32"`
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"min=1"`
	InitialDelay time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY" validate:"gte=0"`
	Multiplier   float64       `yaml:"multiplier" envconfig:"MULTIPLIER" validate:"gte=1"`
	// LookbackDays bounds the default range to the last N published days.
	// Zero reaches back to the history start.
	LookbackDays int `yaml:"lookback_days" envconfig:"LOOKBACK_DAYS" validate:"gte=0"`
}

// StorageConfig locates the store and its exports
type StorageConfig struct {
	// BaseDir anchors relative paths. Empty means the executable directory.
	BaseDir      string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	DatabaseFile string `yaml:"database_file" envconfig:"DATABASE_FILE" validate:"required"`
	Export       bool   `yaml:"export" envconfig:"EXPORT"`
	ExportDaily  bool   `yaml:"export_daily" envconfig:"EXPORT_DAILY"`
	Compression  string `yaml:"compression" envconfig:"COMPRESSION" validate:"oneof=snappy zstd gzip uncompressed"`
}

// ValidationConfig controls the per-date completeness report
type ValidationConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`
	// Window is how many earlier dates set the expected scheme count.
	Window    int     `yaml:"window" envconfig:"WINDOW" validate:"min=1"`
	Threshold float64 `yaml:"threshold" envconfig:"THRESHOLD" validate:"gt=0,lte=1"`
}

// ObjectStoreConfig configures uploads to an S3-compatible bucket
type ObjectStoreConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"ENABLED"`
	AccountID       string `yaml:"account_id" envconfig:"ACCOUNT_ID"`
	Endpoint        string `yaml:"endpoint" envconfig:"ENDPOINT" validate:"omitempty,url"`
	Region          string `yaml:"region" envconfig:"REGION"`
	Bucket          string `yaml:"bucket" envconfig:"BUCKET" validate:"required_if=Enabled true"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"ACCESS_KEY_ID" validate:"required_if=Enabled true"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY" validate:"required_if=Enabled true"`
	Folder          string `yaml:"folder" envconfig:"FOLDER"`
}

// ResolvedEndpoint returns Endpoint, or the R2 endpoint derived from AccountID.
func (o ObjectStoreConfig) ResolvedEndpoint() string {
	if o.Endpoint != "" {
		return o.Endpoint
	}
	if o.AccountID == "" {
		return ""
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", o.AccountID)
}

// TelemetryConfig configures tracing and metrics
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=none stdout"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=none prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// Load builds the configuration from defaults, the optional YAML file and
// NAV_* environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit config file. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

var structValidator = validator.New()

// Validate checks field constraints and normalizes logging settings.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Materializer.MaxDelay > 0 && c.Materializer.MaxDelay < c.Materializer.InitialDelay {
		return fmt.Errorf("materializer max delay %s is below initial delay %s",
			c.Materializer.MaxDelay, c.Materializer.InitialDelay)
	}

	if c.ObjectStore.Enabled && c.ObjectStore.ResolvedEndpoint() == "" {
		return errors.New("object store enabled without endpoint or account id")
	}

	// always JSON
	c.Logging.Format = "json"
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	return nil
}

// getConfigFilePath returns the config file named by NAV_CONFIG_FILE or the
// first default location that exists.
func getConfigFilePath() string {
	if p := os.Getenv(ConfigFileEnv); p != "" {
		return p
	}

	locations := []string{
		DefaultConfigFile,
		"configs/" + DefaultConfigFile,
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultServerPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    DefaultRunTimeout,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: DefaultShutdownDelay,
			RunTimeout:      DefaultRunTimeout,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Source: SourceConfig{
			BaseURL:           DefaultAMFIBaseURL,
			Timeout:           DefaultHTTPTimeout,
			RequestsPerSecond: DefaultRequestRate,
			Burst:             DefaultRequestBurst,
			SkipWeekends:      false,
			HistoryStart:      DefaultHistoryStart,
		},
		Materializer: MaterializerConfig{
			Concurrency:  DefaultConcurrency,
			MaxAttempts:  DefaultMaxAttempts,
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
			Multiplier:   DefaultMultiplier,
		},
		Storage: StorageConfig{
			DataDir:      DefaultDataDir,
			DatabaseFile: DefaultDatabaseFile,
			Export:       true,
			Compression:  DefaultCompression,
		},
		Validation: ValidationConfig{
			Enabled:   true,
			Window:    DefaultValidationWindow,
			Threshold: DefaultValidationThreshold,
		},
		ObjectStore: ObjectStoreConfig{
			Region: DefaultObjectRegion,
			Folder: DefaultObjectFolder,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableTracing:  true,
			EnableMetrics:  true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
