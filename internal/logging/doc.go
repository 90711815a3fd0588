// Package logging provides slog-based structured logging with JSON and
// console handlers, standardized field names, and context carriers for
// task and request identifiers.
package logging
