// Package logging provides a minimal logging interface and adapters for recallgraph.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, flows and stores use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with thread/component context and domain helpers
//   - NewHandler selecting json, text or a colourised console (tint) handler
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "console"})
//	eng, err := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
