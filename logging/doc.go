// Package logging provides structured logging for CardAssist.
//
// The Logger interface (Debug, Info, Warn, Error plus contextual variants)
// is what the engine, flows and agents log through. Arguments after the
// message are alternating key-value pairs, slog style. The package includes:
//
//   - Logger interface for dependency injection
//   - CardAssistLogger, an slog-backed logger with component and session context
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation in tests
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(func(o *engine.Options) {
//		o.Logger = logger
//	})
//
// Helpers like LogToolCall, LogLLMCall and StartTimer standardize the
// fields emitted for the hot paths so log queries stay stable.
package logging
