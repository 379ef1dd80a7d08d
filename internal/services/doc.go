// Package services defines shared utilities consumed by the workflow
// coordinator, stage handlers, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp transaction IDs, stage names, loop names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     (capacity, unknown transaction, handler, timeout, transient) so the
//     coordinator can decide between retry and terminal failure.
//
// Use these helpers when wiring new handlers so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
