// Package logging provides a minimal logging interface and adapters for the
// supervisor.
//
// The Logger interface defines the key/value logging methods (Debug, Info,
// Warn, Error) that the executor, router and workers use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and StructuredLogger built on log/slog
//   - ZapAdapter for go.uber.org/zap (used by the CLI)
//   - NoOpLogger for silent operation (testing, library defaults)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text", Output: os.Stderr})
//	exec := engine.New(router, workers, store, func(o *engine.Options) { o.Logger = logger.WithComponent("engine") })
package logging
