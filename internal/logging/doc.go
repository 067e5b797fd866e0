// Package logging provides structured JSON logging with file rotation.
//
// Logs go to a rotating file and optionally to stderr. All packages log
// through log/slog; this package only configures handlers and sinks.
package logging
