// Package notifications delivers operator events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Task lifecycle and cleanup summaries are the only events; webhook
// delivery to requesters lives in the callback package, not here.
package notifications
