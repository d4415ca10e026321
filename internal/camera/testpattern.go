package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TestPatternConfig configures a TestPattern source.
type TestPatternConfig struct {
	Width  int
	Height int
	Format PixelFormat
	FPS    int

	// Label is drawn above the timestamp, typically the base topic.
	Label string

	// Quality applies when Format is FormatJPEG.
	Quality int
}

// TestPattern renders synthetic frames: colour bars that drift one step per
// frame, a sweeping marker, and a label with the capture time. It paces
// itself to FPS so it behaves like a real sensor.
type TestPattern struct {
	cfg      TestPatternConfig
	interval time.Duration

	mu     sync.Mutex
	seq    uint64
	next   time.Time
	canvas *image.RGBA
	closed bool
}

var barColours = []color.RGBA{
	{0xc0, 0xc0, 0xc0, 0xff},
	{0xc0, 0xc0, 0x00, 0xff},
	{0x00, 0xc0, 0xc0, 0xff},
	{0x00, 0xc0, 0x00, 0xff},
	{0xc0, 0x00, 0xc0, 0xff},
	{0xc0, 0x00, 0x00, 0xff},
	{0x00, 0x00, 0xc0, 0xff},
}

// NewTestPattern creates a TestPattern source.
func NewTestPattern(cfg TestPatternConfig) *TestPattern {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.Format == 0 {
		cfg.Format = FormatRGB888
	}
	return &TestPattern{
		cfg:      cfg,
		interval: time.Second / time.Duration(cfg.FPS),
		canvas:   image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
	}
}

// Capture renders the next frame into f.
func (t *TestPattern) Capture(ctx context.Context, f *Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	if wait := time.Until(t.next); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	now := time.Now()
	t.next = now.Add(t.interval)
	t.seq++

	t.render(now)

	data, err := t.export(f.Data[:0])
	if err != nil {
		return err
	}

	f.Data = data
	f.Width = t.cfg.Width
	f.Height = t.cfg.Height
	f.Format = t.cfg.Format
	f.Timestamp = now
	f.Seq = t.seq
	return nil
}

func (t *TestPattern) render(now time.Time) {
	w, h := t.cfg.Width, t.cfg.Height
	barWidth := max(1, w/len(barColours))
	shift := int(t.seq) % w

	for x := 0; x < w; x++ {
		c := barColours[((x+shift)/barWidth)%len(barColours)]
		for y := 0; y < h; y++ {
			t.canvas.SetRGBA(x, y, c)
		}
	}

	// Sweeping marker so motion is obvious even in grayscale.
	mx := int(t.seq*4) % w
	draw.Draw(t.canvas, image.Rect(mx, 0, min(mx+4, w), h), image.White, image.Point{}, draw.Src)

	// Text band along the bottom.
	band := image.Rect(0, max(0, h-32), w, h)
	draw.Draw(t.canvas, band, image.Black, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  t.canvas,
		Src:  image.White,
		Face: basicfont.Face7x13,
	}
	d.Dot = fixed.P(4, band.Min.Y+13)
	d.DrawString(t.cfg.Label)
	d.Dot = fixed.P(4, band.Min.Y+28)
	d.DrawString(fmt.Sprintf("%s  #%d", now.Format("2006-01-02 15:04:05.000"), t.seq))
}

// export converts the canvas into the configured format, appending to dst.
func (t *TestPattern) export(dst []byte) ([]byte, error) {
	pix := t.canvas.Pix
	switch t.cfg.Format {
	case FormatRGB888:
		for i := 0; i < len(pix); i += 4 {
			dst = append(dst, pix[i], pix[i+1], pix[i+2])
		}
		return dst, nil

	case FormatGray:
		for i := 0; i < len(pix); i += 4 {
			// ITU-R BT.601 luma, integer form.
			y := (299*uint32(pix[i]) + 587*uint32(pix[i+1]) + 114*uint32(pix[i+2])) / 1000
			dst = append(dst, uint8(y))
		}
		return dst, nil

	case FormatJPEG:
		buf := bytes.NewBuffer(dst)
		if err := jpeg.Encode(buf, t.canvas, &jpeg.Options{Quality: clampQuality(t.cfg.Quality)}); err != nil {
			return nil, fmt.Errorf("encoding test pattern: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, t.cfg.Format)
	}
}

// Close makes further captures fail.
func (t *TestPattern) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}
