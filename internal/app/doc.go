// Package app wires navpulse together and manages the navd lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, NAV_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Open the DuckDB store and build the materialize pipeline
//	4. Set up HTTP handlers and middleware
//	5. Configure the HTTP server
//
// Pipeline holds the part shared with the navsync batch binary: store,
// AMFI source, materializer, Parquet exporter, run reporter and the
// optional object store uploader, all behind services.NAVService.
//
// # Usage
//
//	application, err := app.NewApplication(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	return application.Run(ctx)
//
// Run handles SIGINT and SIGTERM. Shutdown drains in-flight requests
// within Server.ShutdownTimeout, closes the store and flushes telemetry.
// Errors are returned to the caller; the package never calls os.Exit.
package app
