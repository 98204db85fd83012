// Package log implements the structured logger used across allocd.
//
// The Logger interface is backed by a slog bridge handler so records flow
// through a Formatter (text or JSON) to one or more Outputs. Components
// receive a Logger by construction and tag their lines with Component(...);
// there is no package-level default logger.
package log
