// Package stage defines the contracts between the coordinator and the
// pluggable handlers that implement each pipeline stage or external
// integration.
//
// Handlers are plain interfaces with one method each. Func adapters cover the
// synchronous case; Async wraps handlers that hand back a Future so the
// coordinator can invoke both uniformly. Integration handlers are reachable
// from stage handlers through the context (see CallIntegration).
package stage
