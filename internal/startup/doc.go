// Package startup loads configuration from the environment and prints the
// structured startup and shutdown log sections.
package startup
