package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitzomax_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	AdminAuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_admin_auth_attempts_total",
			Help: "Admin basic-auth attempts by result",
		},
		[]string{"result"}, // "success", "failure"
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitzomax_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitzomax_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Catalog metrics
var (
	CatalogVideosTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitzomax_catalog_videos_total",
			Help: "Number of videos in the catalog by conversion status",
		},
		[]string{"conversion_status"},
	)

	CatalogPremiumVideosTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_catalog_premium_videos_total",
			Help: "Number of premium videos in the catalog",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_uploads_total",
			Help: "Total number of admin uploads by outcome",
		},
		[]string{"outcome"}, // "converted", "original", "failed", "rejected"
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitzomax_upload_bytes_total",
			Help: "Total bytes received through admin uploads",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_filesystem_retry_attempts_total",
			Help: "Retries of filesystem operations after a stale file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_filesystem_stale_errors_total",
			Help: "Stale file handle errors seen by filesystem operations",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitzomax_filesystem_operation_duration_seconds",
			Help:    "Duration of retried filesystem operations including backoff",
			Buckets: []float64{.0001, .001, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the Go memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_memory_paused",
			Help: "1 while uploads are refused because memory is critical",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitzomax_memory_gc_pauses_total",
			Help: "Times memory reached the critical mark and a GC was forced",
		},
	)
)

// Transcoder metrics
var (
	TranscoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_transcoder_jobs_total",
			Help: "Total number of transcode jobs by terminal state",
		},
		[]string{"state", "reason"},
	)

	TranscoderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bitzomax_transcoder_job_duration_seconds",
			Help:    "Wall-clock duration of transcode jobs",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"state"},
	)

	TranscoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_transcoder_jobs_in_progress",
			Help: "Number of transcode jobs currently running",
		},
	)

	TranscoderBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_transcoder_bytes_total",
			Help: "Bytes consumed and produced by the transcoder",
		},
		[]string{"direction"}, // "in", "out"
	)

	TranscoderSelectedBitrate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bitzomax_transcoder_selected_bitrate_bps",
			Help:    "Video bitrate chosen for each encode",
			Buckets: []float64{1_000_000, 1_500_000, 2_500_000, 3_500_000},
		},
	)
)

// Playback metrics
var (
	PlaybackSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bitzomax_playback_sessions_active",
			Help: "Number of open playback sessions",
		},
	)

	PlaybackPreviewCutoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitzomax_playback_preview_cutoffs_total",
			Help: "Number of times the premium preview limit paused playback",
		},
	)

	PlaybackWatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_playback_watch_records_total",
			Help: "Watch records emitted on session dispose",
		},
		[]string{"completed", "status"},
	)

	PlaybackDurationCorrectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bitzomax_playback_duration_corrections_total",
			Help: "Catalog duration corrections forwarded by primary players",
		},
	)

	PlaybackToggleFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bitzomax_playback_toggle_failures_total",
			Help: "Like or favorite toggles that failed to persist",
		},
		[]string{"kind"}, // "like", "favorite"
	)
)

// Application info
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bitzomax_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)
