// Package capture implements the transcoder's media facade on top of the
// ffmpeg and ffprobe binaries.
//
// Sources are files on disk; uploads held in memory are spooled to a
// temporary file on Open and removed again on Revoke. Playback runs ffmpeg
// at native frame rate (-re) and decodes raw RGBA frames from its stdout.
// A surface is an in-memory RGBA raster. A recorder runs a second ffmpeg
// process that samples the surface at a fixed frame rate, encodes it with
// libvpx-vp9 or libvpx and emits the WebM stream in timesliced chunks.
//
// Every spawned process is tracked so [FFmpeg.Cleanup] can kill stragglers
// at shutdown.
package capture
