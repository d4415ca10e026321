package camera

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Lease holds one borrowed frame and guarantees it goes back to the driver
// exactly once. Any JPEG buffer produced for the frame is released with it.
//
//	lease, err := camera.Borrow(ctx, driver)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
type Lease struct {
	driver Driver
	frame  *Frame

	once    sync.Once
	encoded *bytes.Buffer
}

// Borrow acquires a frame from d.
func Borrow(ctx context.Context, d Driver) (*Lease, error) {
	f, err := d.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{driver: d, frame: f}, nil
}

// Frame returns the borrowed frame. It must not be used after Release.
func (l *Lease) Frame() *Frame {
	return l.frame
}

// NeedsTranscode reports whether the frame is not already JPEG.
func (l *Lease) NeedsTranscode() bool {
	return l.frame.Format != FormatJPEG
}

// JPEG returns the frame as JPEG bytes, valid until Release. JPEG frames
// are returned without copying; raw frames are encoded once into a pooled
// buffer.
func (l *Lease) JPEG(quality int) ([]byte, error) {
	if !l.NeedsTranscode() {
		return l.frame.Data, nil
	}
	if l.encoded == nil {
		buf, err := encodeToBuffer(l.frame, quality)
		if err != nil {
			return nil, err
		}
		l.encoded = buf
	}
	return l.encoded.Bytes(), nil
}

// WriteJPEG writes the frame to w as JPEG without buffering the encoded image.
func (l *Lease) WriteJPEG(w io.Writer, quality int) (int64, error) {
	return EncodeTo(w, l.frame, quality)
}

// Release returns the frame and any encode buffer. Later calls do nothing.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.encoded != nil {
			putBuffer(l.encoded)
			l.encoded = nil
		}
		l.driver.Release(l.frame)
	})
}
