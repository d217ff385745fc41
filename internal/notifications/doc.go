// Package notifications delivers separation lifecycle events via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and gracefully degrades to a no-op when no topic is set. Workflow code
// depends only on the Service interface, so alternative transports slot in
// without touching callers.
package notifications
