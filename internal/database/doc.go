// Package database provides SQLite storage for bitzomax.
//
// It stores:
//   - The video catalog, its tags and per-video conversion status
//   - The viewer's likes, favorites and watch history
//   - The viewer's subscription
//   - Transcode job outcomes
//   - Free-form metadata such as the tuned transcode policy
//
// [Database] satisfies the playback package's Catalog, UserState and
// Subscription collaborators directly. The deployment is single-viewer, so
// user-scoped tables carry no user id.
//
// The database uses WAL mode for concurrent reads and creates or migrates
// its schema on open.
package database
