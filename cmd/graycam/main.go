// graycam bridges a camera to an MQTT broker and serves it over HTTP.
//
// The device announces itself under a base topic derived from its hardware
// address, publishes periodic status and image frames, accepts commands on
// <base>/Cmd/#, and serves /snapshot and an MJPEG /stream for browsers.
//
// Usage:
//
//	graycam                          run the bridge
//	graycam settings list|get|set|delete ...
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/graycam/internal/api"
	"github.com/nerrad567/graycam/internal/bridge"
	"github.com/nerrad567/graycam/internal/camera"
	"github.com/nerrad567/graycam/internal/control"
	"github.com/nerrad567/graycam/internal/infrastructure/config"
	"github.com/nerrad567/graycam/internal/infrastructure/database"
	"github.com/nerrad567/graycam/internal/infrastructure/influxdb"
	"github.com/nerrad567/graycam/internal/infrastructure/logging"
	"github.com/nerrad567/graycam/internal/infrastructure/metrics"
	"github.com/nerrad567/graycam/internal/infrastructure/mqtt"
	"github.com/nerrad567/graycam/internal/netinfo"
	"github.com/nerrad567/graycam/internal/publisher"
	"github.com/nerrad567/graycam/internal/settings"
	"github.com/nerrad567/graycam/internal/stream"
	"github.com/nerrad567/graycam/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "settings" {
		err = runSettings(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
// Deferred closes run in reverse order of construction.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear wiring sequence
	log := logging.Default()
	log.Info("starting graycam",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	// Settings store
	db, store, err := openSettings(ctx, cfg.Settings)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing settings store")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing settings store", "error", closeErr)
		}
	}()
	logSystemInfo(ctx, log, store)

	// Identity and network
	mac, err := hardwareAddr(cfg.Device)
	if err != nil {
		return fmt.Errorf("resolving hardware address: %w", err)
	}
	base := bridge.BaseTopic(cfg.Device.TopicPrefix, mac)
	log = log.With("base", base)
	log.Info("device identity", "mac", mac.String())

	if cfg.Device.NetworkWait > 0 {
		wait := time.Duration(cfg.Device.NetworkWait) * time.Second
		ifName, waitErr := netinfo.WaitAssociated(ctx, netinfo.System, cfg.Device.Interface, wait)
		if waitErr != nil {
			// The MQTT client keeps retrying, so a late network is not fatal.
			log.Warn("network not ready, continuing", "error", waitErr, "waited", wait)
		} else {
			log.Info("network ready", "interface", ifName)
		}
	}

	brokerURL, err := store.BrokerURL(ctx)
	if err != nil {
		return fmt.Errorf("reading broker URL (provision with `graycam settings set %s <url>`): %w",
			settings.KeyBrokerURL, err)
	}

	m := metrics.New()

	// MQTT bridge
	mailbox := bridge.NewMailbox(bridge.MailboxConfig{
		Base:       base,
		Capacity:   cfg.MQTT.MailboxCapacity,
		MaxPayload: cfg.MQTT.MaxPayload,
		Logger:     log.Component("mailbox"),
		Recorder:   m,
	})

	mqttClient, err := mqtt.New(cfg.MQTT, brokerURL, base)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))

	gate := bridge.NewGate(bridge.GateConfig{
		Base:          base,
		Subscriptions: cfg.MQTT.Subscriptions,
		Logger:        log.Component("bridge"),
		Recorder:      m,
	}, mqttClient, mailbox)
	mqttClient.SetEventHandler(gate.HandleEvent)

	mqttClient.Start()
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connecting", "broker", mqttClient.Broker(), "client_id", cfg.MQTT.ClientID)

	// Camera
	src, err := newCameraSource(ctx, cfg.Camera, base, log.Component("camera"))
	if err != nil {
		return fmt.Errorf("starting camera: %w", err)
	}
	pool := camera.NewPool(src, camera.PoolConfig{
		Buffers:     cfg.Camera.FrameBuffers,
		GrabTimeout: cfg.GrabTimeout(),
		Logger:      log.Component("camera"),
	})
	defer func() {
		log.Info("stopping camera")
		if closeErr := pool.Close(); closeErr != nil {
			log.Error("error stopping camera", "error", closeErr)
		}
	}()
	log.Info("camera ready",
		"source", cfg.Camera.Source,
		"size", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height),
		"buffers", cfg.Camera.FrameBuffers,
	)

	streamer := stream.New(pool, stream.Config{
		Quality:  cfg.Stream.JPEGQuality,
		MaxFPS:   cfg.Stream.MaxFPS,
		Logger:   log.Component("stream"),
		Recorder: m,
	})

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Publishers and commands
	status := publisher.NewStatusReporter(publisher.StatusConfig{
		Firmware:  firmware(),
		Interval:  cfg.StatusInterval(),
		Publisher: gate,
		Mailbox:   mailbox,
		Streamer:  streamer,
		Camera:    pool,
		OnStatus: func(st publisher.Status) {
			if influxClient != nil {
				influxClient.WriteBridgeStats(base, bridgeStats(st))
			}
		},
		Logger:   log.Component("status"),
		Recorder: m,
	})
	image := publisher.NewImageReporter(publisher.ImageConfig{
		Interval:  cfg.ImageInterval(),
		Quality:   cfg.Stream.JPEGQuality,
		Publisher: gate,
		Driver:    pool,
		Logger:    log.Component("image"),
		Recorder:  m,
	})

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	dispatcher := control.New(mailbox, hub, log.Component("control"))
	dispatcher.RegisterCommands(status, image)

	// HTTP
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Frames:      streamer,
		MQTT:        gate,
		Mailbox:     mailbox,
		Pool:        pool,
		Dispatcher:  dispatcher,
		Metrics:     m.Handler(),
		ExternalHub: hub,
		Base:        base,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if runErr := dispatcher.Run(gctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("control dispatcher: %w", runErr)
		}
		return nil
	})

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	status.Start(gctx)
	defer status.Stop()
	image.Start(gctx)
	defer image.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("graycam stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYCAM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYCAM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSettings opens the settings database, applies the embedded schema and
// binds a store to the configured namespace.
func openSettings(ctx context.Context, cfg config.SettingsConfig) (*database.DB, *settings.Store, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening settings store: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("migrating settings store: %w", err)
	}
	store, err := settings.New(db, cfg.Namespace)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("opening settings namespace: %w", err)
	}
	return db, store, nil
}

// logSystemInfo logs the startup banner: build, runtime and settings usage.
func logSystemInfo(ctx context.Context, log *logging.Logger, store *settings.Store) {
	log.Info("system",
		"version", version,
		"go", runtime.Version(),
		"os", runtime.GOOS,
		"arch", runtime.GOARCH,
		"cpus", runtime.NumCPU(),
	)

	st, err := store.Stats(ctx)
	if err != nil {
		log.Warn("reading settings stats", "error", err)
		return
	}
	entries, err := store.ListAll(ctx)
	if err != nil {
		log.Warn("listing settings", "error", err)
		return
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Namespace+"/"+e.Key)
	}
	log.Info("settings store", "entries", st.Entries, "namespaces", st.Namespaces, "keys", keys)
}

// hardwareAddr returns the configured MAC override or the interface's own.
func hardwareAddr(cfg config.DeviceConfig) (net.HardwareAddr, error) {
	if cfg.MAC != "" {
		return netinfo.ParseMAC(cfg.MAC)
	}
	return netinfo.MAC(netinfo.System, cfg.Interface)
}

// newCameraSource builds and starts the configured frame source.
func newCameraSource(ctx context.Context, cfg config.CameraConfig, label string, log *logging.Logger) (camera.Source, error) {
	switch cfg.Source {
	case "ffmpeg":
		src := camera.NewFFmpeg(camera.FFmpegConfig{
			Binary:             cfg.FFmpeg.Binary,
			Input:              cfg.FFmpeg.Input,
			InputFormat:        cfg.FFmpeg.InputFormat,
			Width:              cfg.Width,
			Height:             cfg.Height,
			FPS:                cfg.FPS,
			Quality:            cfg.FFmpeg.Quality,
			ExtraArgs:          cfg.FFmpeg.ExtraArgs,
			RestartDelay:       time.Duration(cfg.FFmpeg.RestartDelay) * time.Second,
			MaxRestartAttempts: cfg.FFmpeg.MaxRestartAttempts,
		}, log)
		if err := src.Start(ctx); err != nil {
			return nil, err
		}
		return src, nil

	case "testpattern":
		format, err := camera.ParsePixelFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		return camera.NewTestPattern(camera.TestPatternConfig{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: format,
			FPS:    cfg.FPS,
			Label:  label,
		}), nil

	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}

// firmware is the Firmware field of the status document.
func firmware() string {
	return version + " " + date
}

// bridgeStats flattens a status document into a telemetry sample.
func bridgeStats(st publisher.Status) influxdb.BridgeStats {
	out := influxdb.BridgeStats{
		Connected: st.Connected,
		Uptime:    time.Duration(st.Uptime) * time.Second,
	}
	if st.Mailbox != nil {
		out.MailboxDepth = st.Mailbox.Depth
		out.MailboxAccepted = st.Mailbox.Accepted
		out.MailboxEvicted = st.Mailbox.Evicted
		out.MailboxMalformed = st.Mailbox.Malformed
	}
	if st.Stream != nil {
		out.ActiveStreams = st.Stream.ActiveStreams
		out.FramesStreamed = st.Stream.Frames
		out.Snapshots = st.Stream.Snapshots
	}
	if st.Camera != nil {
		out.CameraFailures = st.Camera.Failures
	}
	return out
}

// healthCheck verifies the local stores are usable. MQTT is not checked:
// the client connects in the background and health reports its state.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("settings store: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
