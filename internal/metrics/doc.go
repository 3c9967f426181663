// Package metrics provides Prometheus instrumentation for bitzomax.
//
// All metrics are prefixed with "bitzomax_" and registered on the default
// registry through promauto, so importing the package is enough to expose
// them on the metrics server.
//
// # Metric Categories
//
// HTTP: request counts, latency and in-flight requests, recorded by the
// middleware package.
//
// Database: query counts and latency by operation, plus on-disk size of the
// SQLite main, WAL and SHM files (refreshed by [Collector]).
//
// Catalog: videos by conversion status, premium videos, and admin uploads by
// outcome.
//
// Transcoder: jobs by terminal state and failure reason, job wall-clock
// duration, jobs in progress, bytes in and out, and the selected bitrate.
//
// Playback: open sessions, preview cutoffs, watch records, duration
// corrections, and like/favorite persistence failures.
//
// Call [InitializeMetrics] once at startup so every label combination is
// present on the first scrape.
package metrics
