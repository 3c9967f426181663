// Package main is the bitzomax server.
//
// Bitzomax is a small video streaming service with a free and a premium
// catalog. Viewers browse the catalog, play videos through server-side
// playback sessions and keep likes, favorites and a watch history.
// Premium videos stop after a short preview unless the viewer holds an
// active subscription. Administrators upload videos, which are transcoded
// to WebM in the background.
//
// # Application Lifecycle
//
//  1. Configuration: reads .env (outside production) and environment variables,
//     then sets GOMEMLIMIT from the container memory limit
//  2. Database: opens the SQLite catalog and viewer state
//  3. Transcoder: probes ffmpeg for VP9/VP8 encoders and loads the stored policy
//  4. Uploader and thumbnailer
//  5. HTTP server, metrics server and background workers
//  6. Graceful shutdown on SIGINT/SIGTERM
//
// # Background Services
//
//   - Metrics Collector: refreshes catalog and database size gauges every minute
//   - Session Sweeper: disposes idle playback sessions, recording their watch
//   - Conversions: one goroutine per upload waits for its transcode job
//   - Memory Monitor: refuses uploads while the heap is near GOMEMLIMIT
//
// # HTTP Server
//
// The main server (default port 8080) serves the catalog, viewer state,
// playback session and admin APIs and the stored media files. Admin
// routes under /api/admin require HTTP basic auth as user "admin" with
// the password whose bcrypt hash is in ADMIN_PASSWORD_HASH. Use the
// hashpw command to generate one.
//
// The metrics server (default port 9090) exposes /metrics and /health.
//
// # Environment Variables
//
//   - PORT: main HTTP server port (default: 8080)
//   - METRICS_PORT: metrics server port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - DATABASE_DIR: directory for the SQLite database (default: /database)
//   - UPLOAD_DIR: directory for uploaded videos and thumbnails (default: /uploads)
//   - TEMP_DIR: spool directory for in-memory transcode inputs
//   - FFMPEG_PATH, FFPROBE_PATH: ffmpeg binaries
//   - TRANSCODE_TIMEOUT: per-job encode timeout (default: 10m)
//   - TRANSCODE_WORKERS: concurrent encodes (default: derived from CPUs)
//   - MAX_UPLOAD_BYTES: upload size limit (default: 2 GiB)
//   - PREVIEW_CUTOFF: premium preview length in seconds (default: 30)
//   - SESSION_IDLE_TIMEOUT: idle playback session lifetime (default: 30m)
//   - ADMIN_PASSWORD_HASH: bcrypt hash of the admin password
//   - ALLOWED_ORIGINS: comma-separated CORS origins (default: *)
//   - MEMORY_LIMIT, MEMORY_RATIO: container memory limit and heap share
//   - LOG_LEVEL: debug, info, warn or error
//
// # Graceful Shutdown
//
//  1. Stop accepting HTTP requests
//  2. Dispose open playback sessions
//  3. Stop the metrics collector
//  4. Cancel running transcode jobs and record their outcome
//  5. Shut down the metrics server
//  6. Close the database
package main
