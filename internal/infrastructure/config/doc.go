// Package config handles loading and validating the Limitimer bridge
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with LIMITIMER_* environment variables
//   - Validation of devices, timings and outer surfaces
//   - Default value handling
//
// Security Considerations:
//   - The MQTT password and InfluxDB token are Secret values and print as
//     [REDACTED] in logs and JSON
//   - Set credentials through environment variables rather than the file
//
// Usage:
//
//	cfg, err := config.Load("configs/limitimer.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range cfg.Devices {
//	    fmt.Println(d.Key, d.Control.URL)
//	}
package config
