// Package logging assembles the structured slog loggers used across the
// daemon.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes helpers so dispatch and plugin code tag log lines
// with session ids, methods, and request ids consistently. A no-op logger is
// provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
