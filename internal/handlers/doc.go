// Package handlers implements the bitzomax HTTP API: the video catalog,
// viewer state, subscriptions, server-driven playback sessions, admin
// uploads with transcode tracking, and stored media files.
//
// Handlers write JSON bodies. Errors are reported as {"error": "..."} with
// a status code matching the failure; lookups of unknown ids return 404.
package handlers
