// Package daemon coordinates the long-running docflow process.
//
// It wires configuration, the SQLite journal, the workflow coordinator,
// Prometheus metrics, ntfy notifications, and webhook-backed handlers into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon also serves the HTTP API used by the CLI.
//
// Keep orchestration logic here: pipeline semantics live in the workflow
// package while the daemon focuses on startup, shutdown, and exposure.
package daemon
