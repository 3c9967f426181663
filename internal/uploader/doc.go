// Package uploader turns an admin upload into a catalog entry.
//
// The original file is written to the upload directory and a catalog row is
// created immediately with conversion status "pending". A transcode job then
// runs in the background; when it finishes the row is updated to point at
// the WebM output ("converted"), at the untouched original when no WebM
// encoder is available ("original"), or is marked "failed". Every job
// transition is mirrored into the transcodes table so status survives a
// restart.
package uploader
