package config

import "time"

// Application constants
const (
	AppName   = "navpulse"
	EnvPrefix = "NAV"

	// ConfigFileEnv names the variable holding an explicit config file path.
	ConfigFileEnv     = "NAV_CONFIG_FILE"
	DefaultConfigFile = "config.yaml"

	// Upstream
	DefaultAMFIBaseURL   = "https://portal.amfiindia.com"
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultRequestRate   = 2.0
	DefaultRequestBurst  = 1
	DefaultHistoryStart  = "2006-04-01"
	DefaultMaxAttempts   = 3
	DefaultInitialDelay  = 5 * time.Second
	DefaultMaxDelay      = time.Minute
	DefaultMultiplier    = 2.0
	DefaultConcurrency   = 1
	MaxConcurrency       = 32
	DefaultRunTimeout    = 2 * time.Hour
	DefaultObjectFolder  = "nav"
	DefaultObjectRegion  = "auto"
	DefaultCompression   = "snappy"
	DefaultDatabaseFile  = "nav.duckdb"
	DefaultDataDir       = "data"
	DefaultLogsDir       = "logs"
	DefaultLogFile       = "logs/navpulse.log"
	DefaultServerPort    = 8080
	DefaultShutdownDelay = 30 * time.Second

	// Completeness report
	DefaultValidationWindow    = 5
	DefaultValidationThreshold = 0.95
)
