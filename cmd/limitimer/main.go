// Limitimer Bridge
//
// This is the main entry point for the Limitimer bridge. The bridge drives
// one or more Limitimer speaker timers over TCP or serial links and exposes
// them to show control over:
//   - MQTT (state, beep events, commands, health)
//   - HTTP and WebSocket (status, commands, live changes)
//   - A SQLite journal of commands and connection transitions
//   - Optional InfluxDB field-change history
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every subcommand shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// Uses LIMITIMER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LIMITIMER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
