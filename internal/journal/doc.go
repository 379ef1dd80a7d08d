// Package journal mirrors every structural queue mutation into SQLite.
//
// The in-memory queue is authoritative while the daemon runs; the journal is
// the persistence boundary the engine hands its state to. A Store subscribes
// to queue events as a queue.Observer, upserts the full transaction snapshot
// on each event, and appends stage transitions and failures to their own
// tables so history survives restarts and completed-index eviction. Reads
// serve `docflow show` and the HTTP fallback for evicted transactions.
package journal
