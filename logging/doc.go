// Package logging provides the minimal logging interface the module's
// components depend on, plus adapters: a slog-backed structured logger and a
// NoOpLogger for silent operation in tests and minimal setups. Components
// accept the Logger interface so callers can plug any structured logger.
package logging
