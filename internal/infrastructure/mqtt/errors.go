package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when the session is not open.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrInvalidBrokerURL is returned when the broker URL cannot be used.
	ErrInvalidBrokerURL = errors.New("mqtt: invalid broker url")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrPayloadTooLarge is returned for payloads over the MQTT limit.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
