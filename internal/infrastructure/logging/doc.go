// Package logging builds the bridge's structured logger on log/slog.
//
// Entries carry the service name and build version. Production runs use
// JSON on stdout or a lumberjack-rotated file; the CLI subcommands log text
// to stderr so their own output stays clean.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/limitimer.log"
//	    max_size: 50     # megabytes
//	    max_backups: 5
//	    max_age: 28      # days
//
// *Logger satisfies limitimer.Logger and transport.Logger and is handed to
// each device as logger.With("device", key).
//
// Secrets in config use config.Secret, which prints as [REDACTED].
package logging
