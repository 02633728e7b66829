// Package logging provides structured logging for Grindlink.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon and the gateway.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("wifi connected", "ip", ip)
//	logger.Warn("publish queued", "session_id", id)
//
// Never log credentials: WiFi passwords and MQTT passwords pass through
// this codebase and must not appear in log fields.
package logging
