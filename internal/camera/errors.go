package camera

import "errors"

var (
	// ErrNoFrame is returned by Acquire when no buffer frees up, or no new
	// frame arrives, within the grab timeout.
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrCapture wraps a failure reported by the frame source.
	ErrCapture = errors.New("camera: capture failed")

	// ErrClosed is returned by Acquire after the pool is closed.
	ErrClosed = errors.New("camera: closed")

	// ErrUnsupportedFormat is returned when a frame cannot be encoded.
	ErrUnsupportedFormat = errors.New("camera: unsupported pixel format")
)
