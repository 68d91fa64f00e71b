// Package tap provides the shared ambient contracts used across the time
// allocation protocol engine's packages: structured logging and nothing
// else at this level, so that every other package (engine, ledger, stream,
// ...) can depend on tap without pulling in any concrete backend.
package tap

// Logger is the structured logging interface every core package accepts.
// Implementations receive alternating key/value pairs after the message.
//
//	logger.Info("hold placed", "resource", urn, "holdId", id)
//
// internal/obslog provides the default zap-backed implementation.
type Logger interface {
	// Info logs a normal, expected event: a command accepted, a cut issued,
	// a subscription opened.
	Info(msg string, args ...any)

	// Error logs a fault that left state unchanged: a log-durability
	// failure, an idempotency-store write failure.
	Error(msg string, args ...any)

	// Warn logs a rejected command: capacity_violation, expired_hold,
	// not_found, conflict.
	Warn(msg string, args ...any)

	// Debug logs fine-grained tracing, normally disabled in production.
	Debug(msg string, args ...any)
}

// NopLogger discards everything. Useful as a zero-value default and in
// tests that don't care about log output.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
