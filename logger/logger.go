// Package logger defines the logging interface used by the disk manager and the buffer pool manager.
//
// The standard library's *slog.Logger implements Logger directly. Adapters for zap and logrus
// are provided so an application can hand its existing logger to the storage layer.
package logger

import "log/slog"

// Logger matches the method set of slog.Logger that the storage layer relies on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Default returns the process wide slog logger.
func Default() Logger {
	return slog.Default()
}

// Discard drops every message. Used by tests that do not care about log output.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}

func (discardLogger) Info(string, ...any) {}

func (discardLogger) Warn(string, ...any) {}

func (discardLogger) Error(string, ...any) {}
