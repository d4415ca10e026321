package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/nerrad567/graycam/internal/stream"
)

// handleSnapshot serves one JPEG frame.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	err := s.frames.Snapshot(r.Context(), w)
	switch {
	case err == nil:
	case errors.Is(err, stream.ErrResourceUnavailable):
		s.logger.Warn("snapshot failed", "error", err, "request_id", requestID(r))
		resetImageHeaders(w)
		writeInternalError(w, "camera frame unavailable")
	case errors.Is(err, stream.ErrTranscode):
		s.logger.Warn("snapshot failed", "error", err, "request_id", requestID(r))
		resetImageHeaders(w)
		writeInternalError(w, "frame encoding failed")
	default:
		// Headers and part of the body are already out.
		s.logger.Debug("snapshot aborted", "error", err, "request_id", requestID(r))
	}
}

// handleStream serves an MJPEG multipart stream until the client leaves,
// the server shuts down or the camera fails.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sw := stream.NewHTTPWriter(w)
	err := s.frames.Stream(r.Context(), sw)

	if sw.Written() == 0 {
		s.logger.Warn("stream failed before first frame", "error", err, "request_id", requestID(r))
		resetImageHeaders(w)
		writeInternalError(w, "camera frame unavailable")
		return
	}

	if errors.Is(err, stream.ErrWrite) || errors.Is(err, context.Canceled) {
		s.logger.Debug("stream closed by client", "bytes", sw.Written(), "request_id", requestID(r))
		return
	}
	s.logger.Warn("stream ended", "error", err, "bytes", sw.Written(), "request_id", requestID(r))
}

// resetImageHeaders drops headers set for a frame that was never sent.
func resetImageHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Del("Content-Disposition")
	h.Del("Content-Length")
	h.Del("Cache-Control")
}
