package camera

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// PixelFormat is the encoding of Frame.Data.
type PixelFormat int

const (
	// FormatJPEG is a complete JPEG file.
	FormatJPEG PixelFormat = iota + 1

	// FormatRGB888 is packed 8-bit R, G, B with no padding.
	FormatRGB888

	// FormatGray is one 8-bit luma sample per pixel.
	FormatGray
)

// String returns the config name of the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatRGB888:
		return "rgb"
	case FormatGray:
		return "gray"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParsePixelFormat maps a config name to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg", "mjpeg":
		return FormatJPEG, nil
	case "rgb", "rgb888":
		return FormatRGB888, nil
	case "gray", "grey", "grayscale":
		return FormatGray, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Frame is one captured image held in a pool buffer.
//
// Data is only valid between Acquire and Release; copy it to keep it.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time

	// Seq is the source sequence number of the captured image.
	Seq uint64

	lent atomic.Bool
}

// Driver lends frames. Every successful Acquire must be paired with exactly
// one Release of the returned frame.
type Driver interface {
	Acquire(ctx context.Context) (*Frame, error)
	Release(f *Frame)
}

// Source fills pool buffers with images.
type Source interface {
	// Capture overwrites f with the next image, reusing f.Data's capacity.
	// It blocks until an image newer than f.Seq is available or ctx ends.
	Capture(ctx context.Context, f *Frame) error

	Close() error
}
