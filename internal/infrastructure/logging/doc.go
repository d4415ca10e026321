// Package logging provides structured logging for graycam.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields (service, version) and level filtering.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("mqtt").Info("connected", "broker", url)
//
// Never log broker passwords or InfluxDB tokens.
package logging
