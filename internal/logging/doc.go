// Package logging provides structured logging utilities for calcompanion.
//
// All components log through log/slog. This package builds the process
// logger from configuration and centralizes attribute names so that
// session, tool and user fields are spelled the same everywhere.
//
// # Usage Patterns
//
// Scope a logger to a chat session:
//
//	logger := logging.WithSession(slog.Default(), user.ID, sessionID)
//	logger.Info("turn committed", logging.Status("ok"))
//
// # Security Considerations
//
// User ids are hashed with UserHash before they reach a log line, and
// bearer credentials are never logged directly; use SanitizeToken.
package logging
