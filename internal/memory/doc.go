// Package memory keeps the Go heap inside a container's memory limit.
//
// Unlike GOMAXPROCS, GOMEMLIMIT is not derived from cgroup limits, so
// [ConfigureFromEnv] sets it from MEMORY_LIMIT (usually injected through
// the Kubernetes Downward API) times MEMORY_RATIO. An explicit GOMEMLIMIT
// always wins.
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    ...
//	}
//
// A [Monitor] samples heap usage every few seconds. Once usage reaches the
// critical mark it reports IsPaused until usage drops below the high water
// mark; the uploader refuses new uploads while paused, since a transcode
// holds its whole WebM output in memory.
//
// Metrics: bitzomax_memory_usage_ratio, bitzomax_memory_paused and
// bitzomax_memory_gc_pauses_total.
package memory
