// Package config provides centralized configuration management for navpulse.
//
// # Configuration Sources
//
// Configuration is layered, later sources winning:
//
//	1. Default() values
//	2. YAML file (NAV_CONFIG_FILE, else ./config.yaml or ./configs/config.yaml)
//	3. Environment variables
//
// # Environment Variables
//
// Variables follow NAV_<SECTION>_<FIELD>:
//
//	NAV_SERVER_PORT=8080
//	NAV_SOURCE_BASE_URL=https://portal.amfiindia.com
//	NAV_MATERIALIZER_CONCURRENCY=4
//	NAV_STORAGE_COMPRESSION=zstd
//	NAV_OBJECT_STORE_ENABLED=true
//	NAV_OBJECT_STORE_ACCOUNT_ID=...
//	NAV_LOGGING_LEVEL=debug
//
// # Path Management
//
// Paths resolves the data layout under a base directory (the executable
// directory unless storage.base_dir is set):
//
//	paths, err := cfg.Paths()
//	report := paths.GetRunReportPath(time.Now())
//
// # Validation
//
// Load validates every section with go-playground/validator struct tags and
// a few cross-field checks (retry delays, object store endpoint).
package config
