package stream

import "errors"

var (
	// ErrResourceUnavailable means no frame could be acquired.
	ErrResourceUnavailable = errors.New("stream: frame unavailable")

	// ErrTranscode means a raw frame could not be encoded as JPEG.
	ErrTranscode = errors.New("stream: transcode failed")

	// ErrWrite means the response could not be written, usually because
	// the client disconnected.
	ErrWrite = errors.New("stream: write failed")
)
