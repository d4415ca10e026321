package camera

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/graycam/internal/process"
)

const (
	// maxJPEGSize bounds a single frame read from ffmpeg.
	maxJPEGSize = 8 << 20

	// initialScanBuffer is the starting scanner buffer.
	initialScanBuffer = 256 << 10
)

// FFmpegConfig configures an FFmpeg source.
type FFmpegConfig struct {
	Binary      string
	Input       string
	InputFormat string
	Width       int
	Height      int
	FPS         int

	// Quality is ffmpeg's -q:v, 2 (best) to 31.
	Quality   int
	ExtraArgs []string

	RestartDelay       time.Duration
	MaxRestartAttempts int

	// StallTimeout is how long without a frame before the watchdog fails.
	StallTimeout time.Duration
}

// Args returns the ffmpeg command line.
func (c FFmpegConfig) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if c.InputFormat != "" {
		args = append(args, "-f", c.InputFormat)
	}
	if c.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.FPS))
	}
	if c.Width > 0 && c.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height))
	}
	args = append(args, "-i", c.Input)
	args = append(args, c.ExtraArgs...)
	args = append(args, "-f", "image2pipe", "-c:v", "mjpeg")
	if c.Quality > 0 {
		args = append(args, "-q:v", strconv.Itoa(c.Quality))
	}
	return append(args, "-")
}

// FFmpeg is a Source reading MJPEG frames from a supervised ffmpeg process.
// Only the latest frame is kept; slow consumers skip frames.
type FFmpeg struct {
	cfg    FFmpegConfig
	mgr    *process.Manager
	logger Logger

	mu        sync.Mutex
	latest    []byte
	width     int
	height    int
	seq       uint64
	lastFrame time.Time
	updated   chan struct{}
	closed    bool
}

// NewFFmpeg creates an FFmpeg source. Call Start to launch the process.
func NewFFmpeg(cfg FFmpegConfig, logger Logger) *FFmpeg {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 10 * time.Second
	}

	s := &FFmpeg{
		cfg:     cfg,
		logger:  logger,
		updated: make(chan struct{}),
	}
	s.mgr = process.NewManager(process.Config{
		Name:               "ffmpeg",
		Binary:             cfg.Binary,
		Args:               cfg.Args(),
		Stdout:             s.consume,
		RestartOnFailure:   true,
		RestartDelay:       cfg.RestartDelay,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
		GracefulTimeout:    3 * time.Second,
		Watchdog:           s.checkFresh,
		WatchdogInterval:   cfg.StallTimeout,
	})
	s.mgr.SetLogger(logger)
	return s
}

// Start launches ffmpeg.
func (s *FFmpeg) Start(ctx context.Context) error {
	return s.mgr.Start(ctx)
}

// Process returns the supervisor statistics.
func (s *FFmpeg) Process() process.Stats {
	return s.mgr.Stats()
}

// consume splits one run's stdout into frames until EOF.
func (s *FFmpeg) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initialScanBuffer), maxJPEGSize)
	sc.Split(SplitJPEG)

	for sc.Scan() {
		s.publish(sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("ffmpeg stream read failed", "error", err)
	}
}

// publish stores a copy of frame as the latest image and wakes waiters.
func (s *FFmpeg) publish(frame []byte) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame))
	if err != nil {
		s.logger.Debug("skipping undecodable frame", "bytes", len(frame), "error", err)
		return
	}

	s.mu.Lock()
	s.latest = append(s.latest[:0], frame...)
	s.width, s.height = cfg.Width, cfg.Height
	s.seq++
	s.lastFrame = time.Now()
	close(s.updated)
	s.updated = make(chan struct{})
	s.mu.Unlock()
}

// Capture copies the latest frame into f once one newer than f.Seq exists.
func (s *FFmpeg) Capture(ctx context.Context, f *Frame) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.seq > f.Seq && s.latest != nil {
			f.Data = append(f.Data[:0], s.latest...)
			f.Width, f.Height = s.width, s.height
			f.Format = FormatJPEG
			f.Timestamp = s.lastFrame
			f.Seq = s.seq
			s.mu.Unlock()
			return nil
		}
		wait := s.updated
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *FFmpeg) checkFresh(context.Context) error {
	s.mu.Lock()
	last := s.lastFrame
	s.mu.Unlock()

	if last.IsZero() {
		// Give a fresh process one interval to produce something.
		last = time.Now().Add(-s.mgr.Stats().Uptime)
	}
	if since := time.Since(last); since > s.cfg.StallTimeout {
		return fmt.Errorf("no frame for %s", since.Round(time.Second))
	}
	return nil
}

// Close stops ffmpeg and fails pending captures.
func (s *FFmpeg) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.updated)
	s.updated = make(chan struct{})
	s.mu.Unlock()

	return s.mgr.Stop()
}
