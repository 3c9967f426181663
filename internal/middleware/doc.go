// Package middleware provides HTTP middleware for the bitzomax server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by route template
//   - Gzip compression of JSON responses
//   - HTTP basic authentication against a bcrypt hash for admin routes
package middleware
