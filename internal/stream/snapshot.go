package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nerrad567/graycam/internal/camera"
)

// Snapshot writes one frame to w as image/jpeg. Nothing is written when
// it fails with ErrResourceUnavailable or ErrTranscode, so the caller can
// still send an error status.
func (s *Streamer) Snapshot(ctx context.Context, w http.ResponseWriter) error {
	lease, err := camera.Borrow(ctx, s.driver)
	if err != nil {
		s.rec.Snapshot(ResultUnavailable)
		return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
	}
	defer lease.Release()

	h := w.Header()
	h.Set("Content-Type", "image/jpeg")
	h.Set("Content-Disposition", "inline; filename=capture.jpg")

	if !lease.NeedsTranscode() {
		data := lease.Frame().Data
		h.Set("Content-Length", strconv.Itoa(len(data)))
		if _, err := w.Write(data); err != nil {
			s.rec.Snapshot(ResultWrite)
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		s.snapshots.Add(1)
		s.rec.Snapshot(ResultOK)
		return nil
	}

	// Raw frames are encoded straight into the response.
	ew := &errWriter{w: w}
	n, err := lease.WriteJPEG(ew, s.quality)
	if err != nil {
		if ew.err != nil {
			s.rec.Snapshot(ResultWrite)
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		s.rec.Snapshot(ResultTranscode)
		return fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	s.snapshots.Add(1)
	s.rec.Snapshot(ResultOK)
	s.logger.Debug("snapshot sent", "bytes", n, "format", lease.Frame().Format.String())
	return nil
}

// errWriter remembers the first error from w so encoder failures can be
// told apart from client failures.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	n, err := e.w.Write(p)
	if err != nil && e.err == nil {
		e.err = err
	}
	return n, err
}
