// Package queue persists extraction tasks and derived artifacts in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema migrations, admission
// check-and-insert, worker claiming, retry scheduling, and callback result
// bookkeeping. Files are keyed by (video_id, type) so artifacts from one task
// are reused by later tasks for the same video until retention lapses.
//
// The store opens a single connection so multi-statement sequences serialize
// without explicit locking. Treat this package as the single source of truth
// for task semantics; status transitions happen only through Store methods.
package queue
