// Package workflow drives transactions through the document pipeline.
//
// The Coordinator owns the priority queue and the handler registry and runs
// three independent background loops:
//   - processing: pops a batch on a fixed interval and fans it out to a task
//     group; each member runs its current stage handler, advances on success,
//     and keeps going until it parks, completes, or fails.
//   - signature monitor: polls the signature status integration for every
//     transaction parked at signature_requested and resumes or fails them.
//   - metrics: recomputes conversion and error rates, evaluates alert
//     thresholds, and sweeps expired completed records.
//
// Failures are isolated per transaction. Callbacks registered on the event bus
// observe lifecycle events; a failing callback is logged and never interrupts
// the operation that fired it.
package workflow
