// Package notifications delivers workflow milestones to ntfy.
//
// NewService returns a no-op notifier when no topic is configured. Subscribe
// binds the notifier to coordinator lifecycle events according to the
// per-event toggles in config.toml; delivery failures surface as callback
// errors and never interrupt the workflow.
package notifications
