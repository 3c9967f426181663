// Package transcoder converts uploaded videos into size-reduced WebM files.
//
// A [Transcoder] accepts a [File] through [Transcoder.Submit] and returns a
// [Job]. The job decodes the source at real-time speed, redraws every frame
// onto an off-screen [Surface] at the source's native resolution and feeds
// that surface into a streaming [Recorder] (VP9 preferred, VP8 fallback). The
// recorder's chunks are assembled into the output file once playback ends.
//
// Everything that touches real media goes through the [MediaCapture] facade,
// so the pipeline can be driven by FFmpeg in production (package capture) and
// by a deterministic fake in tests.
//
// Job lifecycle:
//
//	Idle → Probing → Encoding → Complete | Failed | TimedOut
//
// Progress events are advisory and non-decreasing; exactly one terminal event
// closes every job's event stream. Files whose declared type is already
// video/webm short-circuit to Complete with the input returned unchanged.
//
// Bitrate selection and size estimation are table driven ([BitrateTable],
// [SizeTable]) so the quality/size policy can be tuned without code changes.
package transcoder
