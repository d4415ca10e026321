package process

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "test-proc", Binary: "/usr/bin/test"})

	if m.config.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want %v", m.config.RestartDelay, 5*time.Second)
	}
	if m.config.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want %v", m.config.MaxRestartDelay, 5*time.Minute)
	}
	if m.config.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want %v", m.config.GracefulTimeout, 10*time.Second)
	}
	if m.config.WatchdogInterval != 30*time.Second {
		t.Errorf("WatchdogInterval = %v, want %v", m.config.WatchdogInterval, 30*time.Second)
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
	if m.PID() != 0 {
		t.Errorf("PID() = %d, want 0", m.PID())
	}
}

func TestManager_StopWhenNotRunning(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on idle manager error = %v", err)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	var started, exited atomic.Int32
	m := NewManager(Config{
		Name:            "test-sleep",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnStart:         func() { started.Add(1) },
		OnExit: func(err error) {
			if err == nil {
				exited.Add(1)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if !m.IsRunning() || m.PID() == 0 {
		t.Fatalf("after Start(): running=%v pid=%d", m.IsRunning(), m.PID())
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second Start() expected error, got nil")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if m.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if started.Load() != 1 || exited.Load() != 1 {
		t.Errorf("OnStart calls = %d, clean OnExit calls = %d, want 1 and 1", started.Load(), exited.Load())
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{Name: "bad-binary", Binary: "/nonexistent/binary"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failed start")
	}
}

func TestManager_StdoutConsumer(t *testing.T) {
	var (
		mu  sync.Mutex
		out strings.Builder
	)
	done := make(chan struct{})

	m := NewManager(Config{
		Name:   "echo",
		Binary: "/bin/echo",
		Args:   []string{"frame-data"},
		Stdout: func(r io.Reader) {
			defer close(done)
			b, _ := io.ReadAll(r) //nolint:errcheck // Test reads until EOF
			mu.Lock()
			out.Write(b)
			mu.Unlock()
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stdout consumer never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(out.String()) != "frame-data" {
		t.Errorf("stdout = %q, want %q", out.String(), "frame-data")
	}
}

func TestManager_OutputDrainedBeforeExit(t *testing.T) {
	const size = 256 * 1024

	var read atomic.Int64
	exited := make(chan int64, 1)

	m := NewManager(Config{
		Name:   "burst",
		Binary: "/bin/sh",
		Args:   []string{"-c", "head -c 262144 /dev/zero; exit 3"},
		Stdout: func(r io.Reader) {
			n, _ := io.Copy(io.Discard, r) //nolint:errcheck // Count is what matters
			read.Store(n)
		},
		OnExit: func(error) { exited <- read.Load() },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case n := <-exited:
		if n != size {
			t.Errorf("consumer read %d bytes before exit was reported, want %d", n, size)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("process exit never reported")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestManager_RestartsOnFailure(t *testing.T) {
	var starts atomic.Int32
	m := NewManager(Config{
		Name:               "false",
		Binary:             "/bin/false",
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnStart:            func() { starts.Add(1) },
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not give up after max restarts")
	}

	if got := starts.Load(); got != 3 {
		t.Errorf("starts = %d, want 3 (initial + 2 restarts)", got)
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
}

func TestManager_WatchdogKills(t *testing.T) {
	var exitErr atomic.Value
	m := NewManager(Config{
		Name:             "hung",
		Binary:           "/bin/sleep",
		Args:             []string{"60"},
		Watchdog:         func(context.Context) error { return errors.New("no frames") },
		WatchdogInterval: 10 * time.Millisecond,
		OnExit: func(err error) {
			if err != nil {
				exitErr.Store(err)
			}
		},
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not kill the process")
	}

	if exitErr.Load() == nil {
		t.Error("OnExit did not receive the watchdog error")
	}
}

func TestCalculateBackoffDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := m.calculateBackoffDelay(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
