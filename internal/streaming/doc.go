/*
Package streaming guards long-lived HTTP responses.

TimeoutWriter wraps an http.ResponseWriter so a stalled or vanished client
cannot pin a goroutine while a media file is served. It can be passed
straight to http.ServeContent, which keeps range requests working:

	tw := streaming.NewTimeoutWriter(r.Context(), w, streaming.DefaultTimeoutWriterConfig())
	defer tw.Close()
	http.ServeContent(tw, r, name, modTime, file)

EventStream writes Server-Sent Events. Each Send encodes one JSON payload
and flushes it:

	es, err := streaming.NewEventStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	es.Send("progress", status)

Errors from either type can be checked with errors.Is against
ErrWriteTimeout, ErrClientGone and ErrStreamCanceled.
*/
package streaming
