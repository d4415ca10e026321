// Package config handles loading and validating graycam configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (GRAYCAM_*)
//   - Validation of required fields and value ranges
//   - Default value handling
//
// Device-specific values that must survive a config file replacement, such
// as the broker URL, live in the settings store instead (see package settings).
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.TopicPrefix)
package config
