package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"
)

// DefaultQuality is the JPEG quality used when transcoding raw frames.
const DefaultQuality = 80

var (
	bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}
	rgbaPool   = sync.Pool{New: func() any { return new(image.RGBA) }}
)

// Encode returns f as JPEG bytes. JPEG frames are returned as-is, sharing
// f.Data. For raw frames the result is a fresh slice.
func Encode(f *Frame, quality int) ([]byte, error) {
	if f.Format == FormatJPEG {
		return f.Data, nil
	}
	var buf bytes.Buffer
	if _, err := EncodeTo(&buf, f, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes f to w as JPEG and returns the number of bytes written.
// Raw frames are compressed straight into w, so w sees the output in
// pieces as the encoder produces it.
func EncodeTo(w io.Writer, f *Frame, quality int) (int64, error) {
	cw := &countingWriter{w: w}

	if f.Format == FormatJPEG {
		_, err := cw.Write(f.Data)
		return cw.n, err
	}

	img, done, err := rasterise(f)
	if err != nil {
		return 0, err
	}
	defer done()

	if err := jpeg.Encode(cw, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return cw.n, fmt.Errorf("encoding jpeg: %w", err)
	}
	return cw.n, nil
}

// encodeToBuffer encodes f into a pooled buffer. The caller must hand the
// buffer back with putBuffer.
func encodeToBuffer(f *Frame, quality int) (*bytes.Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if _, err := EncodeTo(buf, f, quality); err != nil {
		putBuffer(buf)
		return nil, err
	}
	return buf, nil
}

func putBuffer(buf *bytes.Buffer) {
	bufferPool.Put(buf)
}

// rasterise wraps raw frame bytes as an image the JPEG encoder has a fast
// path for. Gray frames are used in place; RGB frames are expanded into a
// pooled RGBA image that done returns.
func rasterise(f *Frame) (img image.Image, done func(), err error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d", ErrUnsupportedFormat, f.Width, f.Height)
	}
	rect := image.Rect(0, 0, f.Width, f.Height)

	switch f.Format {
	case FormatGray:
		if len(f.Data) < f.Width*f.Height {
			return nil, nil, fmt.Errorf("%w: short gray frame (%d bytes)", ErrUnsupportedFormat, len(f.Data))
		}
		return &image.Gray{Pix: f.Data, Stride: f.Width, Rect: rect}, func() {}, nil

	case FormatRGB888:
		if len(f.Data) < f.Width*f.Height*3 {
			return nil, nil, fmt.Errorf("%w: short rgb frame (%d bytes)", ErrUnsupportedFormat, len(f.Data))
		}
		rgba := rgbaPool.Get().(*image.RGBA)
		n := f.Width * f.Height * 4
		if cap(rgba.Pix) < n {
			rgba.Pix = make([]byte, n)
		}
		rgba.Pix = rgba.Pix[:n]
		rgba.Stride = f.Width * 4
		rgba.Rect = rect
		for i, j := 0, 0; i < n; i, j = i+4, j+3 {
			rgba.Pix[i] = f.Data[j]
			rgba.Pix[i+1] = f.Data[j+1]
			rgba.Pix[i+2] = f.Data[j+2]
			rgba.Pix[i+3] = 0xff
		}
		return rgba, func() { rgbaPool.Put(rgba) }, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Format)
	}
}

func clampQuality(q int) int {
	switch {
	case q <= 0:
		return DefaultQuality
	case q > 100:
		return 100
	default:
		return q
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
