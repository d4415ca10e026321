package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/camera"
	"github.com/nerrad567/graycam/internal/infrastructure/config"
	"github.com/nerrad567/graycam/internal/infrastructure/logging"
	"github.com/nerrad567/graycam/internal/publisher"
	"github.com/nerrad567/graycam/internal/settings"
	"github.com/nerrad567/graycam/internal/stream"
)

// writeConfig writes a minimal config using a temp settings database and
// returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
device:
  topic_prefix: GRAYCAM
  mac: "aa:bb:cc:dd:ee:ff"
  network_wait: 0

settings:
  path: %q
  namespace: SETTINGS

camera:
  source: testpattern
  format: gray
  width: 64
  height: 48
  frame_buffers: 2
  grab_timeout: 500
  fps: 20

logging:
  level: error
  format: text
  output: stderr
%s`, filepath.Join(dir, "settings.db"), extra)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// ===== run =====

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYCAM_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

func TestRun_MissingBrokerURL(t *testing.T) {
	t.Setenv("GRAYCAM_CONFIG", writeConfig(t, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, settings.ErrMissingBrokerURL) {
		t.Fatalf("run() error = %v, want ErrMissingBrokerURL", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYCAM_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYCAM_CONFIG", "/etc/graycam.yaml")
	if got := getConfigPath(); got != "/etc/graycam.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// ===== settings subcommand =====

func TestRunSettings_RoundTrip(t *testing.T) {
	cfgPath := writeConfig(t, "")
	ctx := context.Background()

	steps := []struct {
		args    []string
		wantOut string
		wantErr error
	}{
		{[]string{"set", settings.KeyBrokerURL, "mqtt://broker.local:1883"}, "SETTINGS/MQTT_URL updated", nil},
		{[]string{"get", settings.KeyBrokerURL}, "mqtt://broker.local:1883", nil},
		{[]string{"list"}, "MQTT_URL", nil},
		{[]string{"delete", settings.KeyBrokerURL}, "SETTINGS/MQTT_URL deleted", nil},
		{[]string{"get", settings.KeyBrokerURL}, "", settings.ErrNotFound},
		{[]string{"delete", settings.KeyBrokerURL}, "", settings.ErrNotFound},
	}

	for _, step := range steps {
		var out bytes.Buffer
		args := append([]string{"-config", cfgPath}, step.args...)
		err := runSettings(ctx, args, &out)

		if step.wantErr != nil {
			if !errors.Is(err, step.wantErr) {
				t.Errorf("%v: error = %v, want %v", step.args, err, step.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", step.args, err)
		}
		if !strings.Contains(out.String(), step.wantOut) {
			t.Errorf("%v: output = %q, want it to contain %q", step.args, out.String(), step.wantOut)
		}
	}
}

func TestRunSettings_Namespace(t *testing.T) {
	cfgPath := writeConfig(t, "")
	ctx := context.Background()

	if err := runSettings(ctx, []string{"-config", cfgPath, "-namespace", "OTHER", "set", "K", "v"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("set in OTHER: %v", err)
	}

	var out bytes.Buffer
	if err := runSettings(ctx, []string{"-config", cfgPath, "list"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if strings.Contains(out.String(), "OTHER") {
		t.Errorf("default namespace list shows OTHER: %q", out.String())
	}

	out.Reset()
	if err := runSettings(ctx, []string{"-config", cfgPath, "-all", "list"}, &out); err != nil {
		t.Fatalf("list -all: %v", err)
	}
	if !strings.Contains(out.String(), "OTHER") {
		t.Errorf("list -all output missing OTHER: %q", out.String())
	}
}

func TestRunSettings_Errors(t *testing.T) {
	cfgPath := writeConfig(t, "")

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"no command", []string{"-config", cfgPath}, errUsage},
		{"unknown command", []string{"-config", cfgPath, "frob"}, errUsage},
		{"get without key", []string{"-config", cfgPath, "get"}, errUsage},
		{"set without value", []string{"-config", cfgPath, "set", "K"}, errUsage},
		{"bad flag", []string{"-bogus"}, errUsage},
		{"invalid broker url", []string{"-config", cfgPath, "set", settings.KeyBrokerURL, "http://x"}, settings.ErrInvalidValue},
		{"key too long", []string{"-config", cfgPath, "set", "THIS_KEY_IS_TOO_LONG", "v"}, settings.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runSettings(context.Background(), tt.args, &bytes.Buffer{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ===== wiring helpers =====

func TestHardwareAddr_Override(t *testing.T) {
	mac, err := hardwareAddr(config.DeviceConfig{MAC: "aa:bb:cc:dd:ee:ff"})
	if err != nil {
		t.Fatalf("hardwareAddr() error: %v", err)
	}
	if got := bridge.BaseTopic("GRAYCAM", mac); got != "GRAYCAM_aabbccddeeff" {
		t.Errorf("BaseTopic = %q, want GRAYCAM_aabbccddeeff", got)
	}

	if _, err := hardwareAddr(config.DeviceConfig{MAC: "not-a-mac"}); err == nil {
		t.Error("invalid MAC override should fail")
	}
}

func TestNewCameraSource(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()

	src, err := newCameraSource(ctx, config.CameraConfig{
		Source: "testpattern", Format: "rgb", Width: 32, Height: 16, FPS: 50,
	}, "GRAYCAM_aabbccddeeff", log)
	if err != nil {
		t.Fatalf("testpattern: %v", err)
	}
	defer src.Close()

	f := &camera.Frame{}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := src.Capture(cctx, f); err != nil {
		t.Fatalf("Capture() error: %v", err)
	}
	if f.Format != camera.FormatRGB888 || f.Width != 32 || f.Height != 16 {
		t.Errorf("frame = %v %dx%d", f.Format, f.Width, f.Height)
	}

	if _, err := newCameraSource(ctx, config.CameraConfig{Source: "webcam"}, "", log); err == nil {
		t.Error("unknown source should fail")
	}
	if _, err := newCameraSource(ctx, config.CameraConfig{Source: "testpattern", Format: "yuv"}, "", log); err == nil {
		t.Error("unknown pixel format should fail")
	}
}

func TestBridgeStats(t *testing.T) {
	st := publisher.Status{
		Uptime:    90,
		Connected: true,
		Mailbox:   &bridge.MailboxStats{Depth: 2, Accepted: 12, Evicted: 1, Malformed: 3},
		Stream:    &stream.Stats{ActiveStreams: 1, Frames: 400, Snapshots: 5},
		Camera:    &camera.PoolStats{Failures: 7},
	}

	got := bridgeStats(st)

	if !got.Connected || got.Uptime != 90*time.Second {
		t.Errorf("connected/uptime = %v/%v", got.Connected, got.Uptime)
	}
	if got.MailboxDepth != 2 || got.MailboxAccepted != 12 || got.MailboxEvicted != 1 || got.MailboxMalformed != 3 {
		t.Errorf("mailbox fields = %+v", got)
	}
	if got.ActiveStreams != 1 || got.FramesStreamed != 400 || got.Snapshots != 5 {
		t.Errorf("stream fields = %+v", got)
	}
	if got.CameraFailures != 7 {
		t.Errorf("CameraFailures = %d, want 7", got.CameraFailures)
	}

	// Optional sections may be absent.
	if got := bridgeStats(publisher.Status{Uptime: 1}); got.MailboxDepth != 0 || got.FramesStreamed != 0 {
		t.Errorf("empty status = %+v", got)
	}
}

func TestFirmware(t *testing.T) {
	if got := firmware(); got != version+" "+date {
		t.Errorf("firmware() = %q", got)
	}
}
