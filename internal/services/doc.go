// Package services implements the orchestration layer between the HTTP and
// CLI front ends and the materializer, store, exporter and object store.
//
// NAVService runs one materialization at a time:
//
//	materialize range -> write run report -> export Parquet -> upload
//
// Export and upload failures are reported on the RunReport and never roll back
// dates already written to the store. HealthService backs the liveness,
// readiness and version endpoints.
package services
