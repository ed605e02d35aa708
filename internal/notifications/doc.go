// Package notifications delivers signing and release events via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Per-category toggles let operators silence routine signing
// traffic while keeping error alerts.
//
// All pipeline code depends only on the Service interface.
package notifications
