// Package logging provides structured logging for Homestream.
//
// It wraps log/slog with configuration-driven level, format, and output
// selection, and stamps every record with the service name and version.
// Component loggers are derived with With:
//
//	sessionLog := log.With("component", "session")
package logging
