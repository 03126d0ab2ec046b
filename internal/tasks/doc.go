// Package tasks runs many track lookups as one job with real-time progress reporting.
//
// # Input
//
// [ParseQueries] reads one query per line:
//
//   - a bare ISRC, or isrc:<code>
//   - a service identifier as service:id
//   - "Artist - Title"
//
// Blank lines and lines starting with # are skipped.
//
// # Bulk Lookup
//
// [Engine.BulkLookup] feeds the queries to a bounded worker pool. Each worker fetches fragments
// through the shared [orchestrator.Orchestrator], so per-service limits hold across the whole job,
// merges them with the [merge.Merger] and optionally hands the record to a [models.Sink].
// A failed lookup is recorded and never stops the others.
//
// # Progress Reporting
//
// Progress updates are sent on an optional channel with select and default so a slow reader
// never blocks the workers.
package tasks
