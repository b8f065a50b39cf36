// Package materializer fills the gaps of a date-keyed NAV series.
//
// A run takes an inclusive date range, asks the Store which dates it already
// covers, and fetches only the remaining dates from a Source. Every missing
// date ends in exactly one terminal state:
//
//   - written: validated, deduplicated records were upserted
//   - no_data: the source confirmed there was no trading; a marker is stored
//     so later runs do not ask again
//   - failed: retries were exhausted, the source rejected the request, nothing
//     survived validation, or the store write failed
//   - not_attempted: the run was cancelled before the date finished fetching
//
// Dates already covered by the store are reported as skipped.
//
// Core Components:
//
// Materializer: runs the per-date fetch, validate, dedupe and write unit,
// either sequentially or on a bounded worker pool.
//
// Store and Source: the two collaborators. Stores must make Upsert atomic per
// date and serialize concurrent writers.
//
// RetryConfig: bounded exponential backoff for transient fetch failures.
//
// Example usage:
//
//	m := materializer.New(store, source,
//		materializer.WithConcurrency(4),
//		materializer.WithRetry(materializer.NewRetryConfig()),
//	)
//	result, err := m.Materialize(ctx, domain.NewDateRange(from, to))
package materializer
