// Package publisher runs the device's periodic MQTT publications.
//
// StatusReporter publishes a JSON status object to <base>/Status and
// ImageReporter publishes one JPEG frame to <base>/Snapshot, each on its
// own ticker. Both skip a tick while the broker is unreachable; nothing is
// queued for later.
package publisher
