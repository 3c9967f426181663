package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, status := range []string{"pending", "converted", "original", "failed"} {
		CatalogVideosTotal.WithLabelValues(status)
	}

	for _, outcome := range []string{"converted", "original", "failed", "rejected"} {
		UploadsTotal.WithLabelValues(outcome)
	}

	TranscoderJobsTotal.WithLabelValues("complete", "")
	for _, reason := range []string{
		"unreadable_media", "unsupported_codec", "playback_failure",
		"context_unavailable", "recorder_failure", "canceled",
	} {
		TranscoderJobsTotal.WithLabelValues("failed", reason)
	}
	TranscoderJobsTotal.WithLabelValues("timed_out", "timeout")

	for _, state := range []string{"complete", "failed", "timed_out"} {
		TranscoderJobDuration.WithLabelValues(state)
	}

	for _, dir := range []string{"in", "out"} {
		TranscoderBytesTotal.WithLabelValues(dir)
	}

	for _, completed := range []string{"true", "false"} {
		PlaybackWatchRecordsTotal.WithLabelValues(completed, "success")
		PlaybackWatchRecordsTotal.WithLabelValues(completed, "error")
	}

	for _, kind := range []string{"like", "favorite"} {
		PlaybackToggleFailuresTotal.WithLabelValues(kind)
	}
}
