// Package logging provides leveled, printf-style logging for the bitzomax
// server.
//
// Levels, from most to least verbose:
//   - DEBUG: per-frame, per-tick and per-request detail
//   - INFO: lifecycle and job outcome messages
//   - WARN: recoverable problems (rejected play, failed persistence)
//   - ERROR: failures that abort an operation
//   - FATAL: startup failures that terminate the process
//
// The level comes from LOG_LEVEL, or DEBUG=true as a shortcut. Components
// obtain a prefixed logger with [For], e.g. logging.For("transcoder").
package logging
