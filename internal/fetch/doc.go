// Package fetch defines the boundary to the external extraction engine.
//
// The Engine interface hides the transport; the HTTP client implementation
// downloads artifacts into the configured store directories. Failures cross
// the boundary exactly once, as a ClassifiedError carrying a closed Kind that
// drives the retry policy. Provider error codes map to kinds through a data
// table in classify.go; unknown codes classify as KindInternal.
package fetch
