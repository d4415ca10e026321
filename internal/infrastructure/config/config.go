package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for graycam.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Settings   SettingsConfig   `yaml:"settings"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Camera     CameraConfig     `yaml:"camera"`
	Stream     StreamConfig     `yaml:"stream"`
	Publishers PublishersConfig `yaml:"publishers"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DeviceConfig identifies the device on the network.
type DeviceConfig struct {
	// TopicPrefix is joined with the hardware address to form the base topic.
	TopicPrefix string `yaml:"topic_prefix"`

	// Interface names the network interface whose MAC is used.
	// Empty selects the first non-loopback interface with a hardware address.
	Interface string `yaml:"interface"`

	// MAC overrides hardware address discovery (e.g. "aa:bb:cc:dd:ee:ff").
	MAC string `yaml:"mac"`

	// NetworkWait is how long startup waits for the interface to come up (seconds).
	NetworkWait int `yaml:"network_wait"`
}

// SettingsConfig locates the persistent key/value settings store.
type SettingsConfig struct {
	Path        string `yaml:"path"`
	Namespace   string `yaml:"namespace"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains the broker session and bridge sizing.
//
// The broker URL itself is not part of this file: it is read from the
// settings store (key MQTT_URL) so it can be provisioned per device.
type MQTTConfig struct {
	ClientID        string              `yaml:"client_id"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	KeepAlive       int                 `yaml:"keep_alive"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	Subscriptions   []string            `yaml:"subscriptions"`
	MailboxCapacity int                 `yaml:"mailbox_capacity"`
	MaxPayload      int                 `yaml:"max_payload"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
// The write timeout is lifted for the /stream route.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the inbound message monitor.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// CameraConfig selects and sizes the frame source.
type CameraConfig struct {
	// Source is "testpattern" or "ffmpeg".
	Source string `yaml:"source"`

	// Format is the native pixel format of the testpattern source: "rgb", "gray" or "jpeg".
	Format string `yaml:"format"`

	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FrameBuffers is the number of frames the driver can lend at once.
	FrameBuffers int `yaml:"frame_buffers"`

	// GrabTimeout bounds how long Acquire waits for a buffer (milliseconds).
	GrabTimeout int `yaml:"grab_timeout"`

	// FPS is the capture rate of the source.
	FPS int `yaml:"fps"`

	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
}

// FFmpegConfig configures the supervised ffmpeg capture process.
type FFmpegConfig struct {
	Binary             string   `yaml:"binary"`
	Input              string   `yaml:"input"`
	InputFormat        string   `yaml:"input_format"`
	ExtraArgs          []string `yaml:"extra_args"`
	Quality            int      `yaml:"quality"`
	RestartDelay       int      `yaml:"restart_delay"`
	MaxRestartAttempts int      `yaml:"max_restart_attempts"`
}

// StreamConfig contains MJPEG streaming settings.
type StreamConfig struct {
	// JPEGQuality is used when a frame must be transcoded.
	JPEGQuality int `yaml:"jpeg_quality"`

	// MaxFPS caps frames per connection. Zero means as fast as the camera delivers.
	MaxFPS float64 `yaml:"max_fps"`
}

// PublishersConfig contains the periodic publisher intervals (seconds).
type PublishersConfig struct {
	StatusInterval int `yaml:"status_interval"`
	ImageInterval  int `yaml:"image_interval"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYCAM_SECTION_KEY
// For example: GRAYCAM_SETTINGS_PATH, GRAYCAM_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, used when no file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			TopicPrefix: "GRAYCAM",
			NetworkWait: 30,
		},
		Settings: SettingsConfig{
			Path:        "./data/settings.db",
			Namespace:   "SETTINGS",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			ClientID:  "graycam",
			KeepAlive: 30,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Subscriptions:   []string{"Cmd/#"},
			MailboxCapacity: 10,
			MaxPayload:      128,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Camera: CameraConfig{
			Source:       "testpattern",
			Format:       "rgb",
			Width:        640,
			Height:       480,
			FrameBuffers: 1,
			GrabTimeout:  1000,
			FPS:          10,
			FFmpeg: FFmpegConfig{
				Binary:             "/usr/bin/ffmpeg",
				Input:              "/dev/video0",
				InputFormat:        "v4l2",
				Quality:            5,
				RestartDelay:       5,
				MaxRestartAttempts: 10,
			},
		},
		Stream: StreamConfig{
			JPEGQuality: 80,
		},
		Publishers: PublishersConfig{
			StatusInterval: 30,
			ImageInterval:  60,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYCAM_DEVICE_MAC"); v != "" {
		cfg.Device.MAC = v
	}
	if v := os.Getenv("GRAYCAM_DEVICE_INTERFACE"); v != "" {
		cfg.Device.Interface = v
	}
	if v := os.Getenv("GRAYCAM_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}

	if v := os.Getenv("GRAYCAM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYCAM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYCAM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYCAM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("GRAYCAM_CAMERA_SOURCE"); v != "" {
		cfg.Camera.Source = v
	}

	if v := os.Getenv("GRAYCAM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYCAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.TopicPrefix == "" {
		errs = append(errs, "device.topic_prefix is required")
	}
	if c.Settings.Path == "" {
		errs = append(errs, "settings.path is required")
	}
	if c.Settings.Namespace == "" {
		errs = append(errs, "settings.namespace is required")
	}

	if c.MQTT.ClientID == "" {
		errs = append(errs, "mqtt.client_id is required")
	}
	if c.MQTT.MailboxCapacity < 1 {
		errs = append(errs, "mqtt.mailbox_capacity must be at least 1")
	}
	if c.MQTT.MaxPayload < 1 {
		errs = append(errs, "mqtt.max_payload must be at least 1")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if err := c.Camera.Validate(); err != nil {
		errs = append(errs, "camera: "+err.Error())
	}
	if err := c.Stream.Validate(); err != nil {
		errs = append(errs, "stream: "+err.Error())
	}

	if c.Publishers.StatusInterval < 1 || c.Publishers.ImageInterval < 1 {
		errs = append(errs, "publishers intervals must be at least 1 second")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks camera settings.
func (c CameraConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Source, validation.Required, validation.In("testpattern", "ffmpeg")),
		validation.Field(&c.Format, validation.When(c.Source == "testpattern",
			validation.Required, validation.In("rgb", "gray", "jpeg"))),
		validation.Field(&c.Width, validation.Required, validation.Min(16), validation.Max(4096)),
		validation.Field(&c.Height, validation.Required, validation.Min(16), validation.Max(4096)),
		validation.Field(&c.FrameBuffers, validation.Required, validation.Min(1), validation.Max(8)),
		validation.Field(&c.GrabTimeout, validation.Required, validation.Min(1)),
		validation.Field(&c.FPS, validation.Required, validation.Min(1), validation.Max(120)),
		validation.Field(&c.FFmpeg, validation.When(c.Source == "ffmpeg", validation.By(validateFFmpeg))),
	)
}

func validateFFmpeg(value any) error {
	f, ok := value.(FFmpegConfig)
	if !ok {
		return fmt.Errorf("unexpected type %T", value)
	}
	return validation.ValidateStruct(&f,
		validation.Field(&f.Binary, validation.Required),
		validation.Field(&f.Input, validation.Required),
		validation.Field(&f.Quality, validation.Min(2), validation.Max(31)),
	)
}

// Validate checks streaming settings.
func (s StreamConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.JPEGQuality, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&s.MaxFPS, validation.Min(0.0)),
	)
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// GrabTimeout returns the camera grab timeout as a Duration.
func (c *Config) GrabTimeout() time.Duration {
	return time.Duration(c.Camera.GrabTimeout) * time.Millisecond
}

// StatusInterval returns the status publisher period.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Publishers.StatusInterval) * time.Second
}

// ImageInterval returns the image publisher period.
func (c *Config) ImageInterval() time.Duration {
	return time.Duration(c.Publishers.ImageInterval) * time.Second
}
