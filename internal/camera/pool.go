package camera

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Pool defaults match a single-buffer camera with a one second grab timeout.
const (
	DefaultBuffers     = 1
	DefaultGrabTimeout = time.Second
)

// Logger is the logging surface the camera package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Buffers     int
	GrabTimeout time.Duration
	Logger      Logger
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Buffers  int    `json:"buffers"`
	Free     int    `json:"free"`
	Acquired uint64 `json:"acquired"`
	Released uint64 `json:"released"`
	Failures uint64 `json:"failures"`
}

// Pool is a Driver backed by a fixed number of frame buffers.
//
// Thread Safety: Acquire and Release may be called concurrently.
type Pool struct {
	src         Source
	free        chan *Frame
	grabTimeout time.Duration
	logger      Logger

	closed   atomic.Bool
	acquired atomic.Uint64
	released atomic.Uint64
	failures atomic.Uint64
}

// NewPool creates a Pool filling its buffers from src.
func NewPool(src Source, cfg PoolConfig) *Pool {
	if cfg.Buffers <= 0 {
		cfg.Buffers = DefaultBuffers
	}
	if cfg.GrabTimeout <= 0 {
		cfg.GrabTimeout = DefaultGrabTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	p := &Pool{
		src:         src,
		free:        make(chan *Frame, cfg.Buffers),
		grabTimeout: cfg.GrabTimeout,
		logger:      cfg.Logger,
	}
	for i := 0; i < cfg.Buffers; i++ {
		p.free <- &Frame{}
	}
	return p
}

// Acquire takes a free buffer and fills it with the next image.
// It fails with ErrNoFrame if that takes longer than the grab timeout.
func (p *Pool) Acquire(ctx context.Context) (*Frame, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, p.grabTimeout)
	defer cancel()

	var f *Frame
	select {
	case f = <-p.free:
	case <-ctx.Done():
		p.failures.Add(1)
		return nil, fmt.Errorf("%w: waiting for buffer: %w", ErrNoFrame, ctx.Err())
	}
	f.lent.Store(true)

	if err := p.src.Capture(ctx, f); err != nil {
		f.lent.Store(false)
		p.free <- f
		p.failures.Add(1)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %w", ErrNoFrame, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	p.acquired.Add(1)
	return f, nil
}

// Release returns f to the pool. Releasing a frame that is not out on
// loan is logged and ignored.
func (p *Pool) Release(f *Frame) {
	if f == nil {
		return
	}
	if !f.lent.CompareAndSwap(true, false) {
		p.logger.Warn("release of frame not on loan ignored", "seq", f.Seq)
		return
	}
	p.released.Add(1)
	p.free <- f
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Buffers:  cap(p.free),
		Free:     len(p.free),
		Acquired: p.acquired.Load(),
		Released: p.released.Load(),
		Failures: p.failures.Load(),
	}
}

// Close stops lending and closes the source.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.src.Close()
}
