// Package media produces catalog thumbnails.
//
// Uploaded cover images (JPEG, PNG, GIF or WebP) are decoded with automatic
// EXIF orientation, constrained to a sane pixel budget and fitted inside the
// catalog's 320×640 card. When no cover is uploaded a frame is extracted
// from the video with FFmpeg instead. Output is always JPEG.
package media
