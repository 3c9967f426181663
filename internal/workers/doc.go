// Package workers sizes worker pools from the CPU budget of the process.
//
// Counts derive from runtime.GOMAXPROCS, which follows container CPU limits,
// scaled by a per-workload multiplier and capped by an optional limit. The
// TRANSCODE_WORKERS environment variable overrides the computed value:
//
//	TRANSCODE_WORKERS=2 ./bitzomax
//
// Typical use:
//
//	sem := make(chan struct{}, workers.ForTranscode(4))
package workers
