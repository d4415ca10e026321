package stream

import (
	"net/http"
	"time"
)

// ChunkWriter is the response side of a stream. WriteChunk must push p to
// the client before returning.
type ChunkWriter interface {
	SetContentType(contentType string)
	WriteChunk(p []byte) error
}

// HTTPWriter adapts an http.ResponseWriter to ChunkWriter, flushing after
// every chunk.
type HTTPWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	written int64
}

// NewHTTPWriter wraps w. The server write deadline is cleared because a
// stream outlives any fixed timeout.
func NewHTTPWriter(w http.ResponseWriter) *HTTPWriter {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{}) //nolint:errcheck // Not every writer supports deadlines
	return &HTTPWriter{w: w, rc: rc}
}

// SetContentType sets the response Content-Type. It has no effect after
// the first chunk.
func (h *HTTPWriter) SetContentType(contentType string) {
	h.w.Header().Set("Content-Type", contentType)
	h.w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.w.Header().Set("X-Content-Type-Options", "nosniff")
}

// WriteChunk writes p and flushes it to the client.
func (h *HTTPWriter) WriteChunk(p []byte) error {
	n, err := h.w.Write(p)
	h.written += int64(n)
	if err != nil {
		return err
	}
	return h.rc.Flush()
}

// Written returns the number of body bytes written so far.
func (h *HTTPWriter) Written() int64 {
	return h.written
}
