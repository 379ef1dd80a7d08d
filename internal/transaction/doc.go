// Package transaction defines the unit of work the engine moves through the
// document pipeline.
//
// A Transaction carries identity, the requested and escalated priority, its
// processing status, the current pipeline stage, the business payload, and
// append-only processing/error histories. The fixed stage graph
// (initial → data_retrieved → document_generated → stored →
// signature_requested → signature_completed → notification_sent → completed,
// with failed reachable from any non-terminal stage) lives here so every
// package validates transitions against the same table.
//
// Priority, complexity, and duration estimates are computed by pure functions
// over the submission payload; nothing in this package touches shared state.
package transaction
