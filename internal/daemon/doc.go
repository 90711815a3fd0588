// Package daemon coordinates the long-running services: single-instance
// locking, startup recovery, the worker loop, the cleanup scheduler, and the
// HTTP API surface. Recovery runs before the API accepts traffic so clients
// never observe tasks stranded in downloading from a previous process.
package daemon
