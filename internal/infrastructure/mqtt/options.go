package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/graycam/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the offline publish on Close.
	defaultPublishTimeout = 2 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 500 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// maxPayloadSize is the MQTT 3.1.1 packet limit, minus headroom.
	maxPayloadSize = 256<<20 - 1<<10

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Availability payloads.
const (
	AvailabilitySubtopic = "Availability"
	PayloadOnline        = "online"
	PayloadOffline       = "offline"
)

// defaultPorts fills in the port when the broker URL has none.
var defaultPorts = map[string]string{
	"mqtt":  "1883",
	"tcp":   "1883",
	"mqtts": "8883",
	"ssl":   "8883",
	"tls":   "8883",
	"ws":    "80",
	"wss":   "443",
}

// parseBrokerURL validates raw and adds the scheme's default port.
func parseBrokerURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBrokerURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidBrokerURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidBrokerURL)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, nil
}

func isSecure(scheme string) bool {
	switch scheme {
	case "mqtts", "ssl", "tls", "wss":
		return true
	default:
		return false
	}
}

// clientIDFor makes the client ID unique per device by appending the MAC
// part of the base topic.
func clientIDFor(prefix, base string) string {
	suffix := base
	if i := strings.LastIndexByte(base, '_'); i >= 0 && i < len(base)-1 {
		suffix = base[i+1:]
	}
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// buildClientOptions creates paho options for one device session.
//
// This configures:
//   - Broker URL, TLS for secure schemes
//   - Credentials from config, or from the URL's user info
//   - Clean session with connect retry and auto-reconnect
//   - Last Will on <base>/Availability
func buildClientOptions(cfg config.MQTTConfig, broker *url.URL, base string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker.String())
	opts.SetClientID(clientIDFor(cfg.ClientID, base))

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	} else if broker.User != nil {
		opts.SetUsername(broker.User.Username())
		if pw, ok := broker.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(time.Duration(cfg.KeepAlive) * time.Second)

	if isSecure(broker.Scheme) {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			ServerName: broker.Hostname(),
		})
	}

	opts.SetWill(availabilityTopic(base), PayloadOffline, 1, true)
	return opts
}

func availabilityTopic(base string) string {
	return base + "/" + AvailabilitySubtopic
}
