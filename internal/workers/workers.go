package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride is the environment variable that pins the transcoder pool size.
const EnvOverride = "TRANSCODE_WORKERS"

// Count returns the number of workers for a task with the given CPU
// multiplier. It respects container CPU limits via GOMAXPROCS.
//
// The multiplier adjusts for task characteristics:
//   - 1.0 for CPU-bound tasks
//   - 2.0 for I/O-bound tasks
//   - 0.5 for tasks that spawn multi-threaded subprocesses
//
// The limit parameter caps the worker count. Use 0 for no limit.
// A positive TRANSCODE_WORKERS value overrides the computed count.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForTranscode returns the number of concurrent encode jobs. Each job runs
// an encoder that is itself multi-threaded, so the pool gets one slot per
// two CPUs.
func ForTranscode(limit int) int {
	return Count(0.5, limit)
}
