// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Telemetry is optional: Connect returns ErrDisabled unless
// influxdb.enabled is set, and the caller carries on without it.
// Writes are batched and non-blocking; failures are reported through the
// SetOnError callback rather than returned.
//
// # Configuration
//
//	influxdb:
//	  enabled: true
//	  url: "http://influxdb:8086"
//	  token: ""            # or GRAYCAM_INFLUXDB_TOKEN
//	  org: "graycam"
//	  bucket: "telemetry"
//	  batch_size: 100
//	  flush_interval: 10   # seconds
//
// # Measurements
//
// bridge_stats, tagged device=<base topic>, one point per status tick.
package influxdb
