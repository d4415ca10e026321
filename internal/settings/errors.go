package settings

import "errors"

var (
	// ErrNotFound is returned when a key has no value in the namespace.
	ErrNotFound = errors.New("settings: key not found")

	// ErrInvalidKey is returned for empty or over-length keys.
	ErrInvalidKey = errors.New("settings: invalid key")

	// ErrInvalidValue is returned for values the store refuses to hold.
	ErrInvalidValue = errors.New("settings: invalid value")

	// ErrMissingBrokerURL is returned by BrokerURL when the device has not been provisioned.
	ErrMissingBrokerURL = errors.New("settings: broker URL not provisioned")
)
