// Package config loads, normalizes, and validates docflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DOCFLOW_API_TOKEN and DOCFLOW_NTFY_TOPIC. The Config type centralizes every
// knob the engine, daemon, and CLI need: queue sizing, loop intervals, retry
// and timeout policy, alert thresholds, handler endpoints, and notifications.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
