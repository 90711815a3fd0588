// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal queue models into transport-friendly DTOs so
// the daemon handlers, the CLI, and webhook consumers never couple to
// internal types.
//
// DTOs use snake_case JSON tags matching the webhook payload contract.
// Timestamps use RFC3339. VideoInfo and file metadata pass through as
// json.RawMessage to avoid double-encoding.
package api
