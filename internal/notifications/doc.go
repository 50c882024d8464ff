// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Run completion and
// run failure can each be switched off in config; suppressed events return
// nil without touching the network.
//
// Observer adapts a Service to the pipeline's observer hook so the
// orchestrator never deals with HTTP.
package notifications
