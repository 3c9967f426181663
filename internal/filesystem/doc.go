/*
Package filesystem wraps the file operations used on the upload volume
with retry logic for NFS stale file handle errors.

Uploads, transcoded WebM files and thumbnails live in UPLOAD_DIR, which is
often a network mount. An ESTALE error (errno 116) from os.Stat, os.Open,
os.Rename or os.Remove is retried with exponential backoff; every other
error is returned immediately.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

Defaults: 3 retries, 50ms initial backoff, 500ms cap.

Retries, successes after retrying, final failures and stale errors are
exported as bitzomax_filesystem_* metrics labeled by operation and by the
volume name resolved from the path (see SetDefaultVolumeResolver).
*/
package filesystem
