// Package mediatypes holds the shared domain types of bitzomax and the file
// classification helpers used when accepting uploads and serving media.
//
// It has no dependencies beyond the standard library so the database,
// playback, uploader and handlers packages can all import it without
// creating cycles.
//
// # Domain Types
//
// [Video] is a catalog entry, [User] is the viewer's liked/favorite state,
// [WatchRecord] is one watch-history entry and [SubscriptionDetails] is the
// viewer's plan.
//
// # Extension Detection
//
//	ext := strings.ToLower(filepath.Ext(filename))
//	switch mediatypes.GetFileType(ext) {
//	case mediatypes.FileTypeImage:
//	    // thumbnail
//	case mediatypes.FileTypeVideo:
//	    // video upload
//	}
//
// GetMimeType maps an extension to the Content-Type used when serving it.
package mediatypes
