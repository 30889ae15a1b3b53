// Package logging provides structured logging built on log/slog.
//
// The Logger type adds config-driven format and level selection plus
// default service/version attributes. Core packages do not import this
// package; they declare minimal Logger interfaces that *logging.Logger
// satisfies, keeping them testable with no-op loggers.
package logging
