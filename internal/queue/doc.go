// Package queue holds in-flight transactions and releases them in priority
// order.
//
// The Queue owns a single arena of transactions keyed by id. Auxiliary
// structures index that arena: a pending heap ordered by transaction.SortKeyLess,
// a processing set, a bounded completed list with TTL eviction, and a stage
// index that lets the signature monitor enumerate parked transactions without
// scanning the arena. One mutex guards every structural mutation, and every id
// lives in exactly one of pending, processing, or completed.
//
// Callers always receive clones; the arena records never leave the package.
// Observers (journal, metrics) are notified after the lock is released, in the
// order mutations happened on the calling goroutine.
//
// Operations on unknown ids are logged and ignored. Admission reports capacity
// exhaustion as a false return so the caller decides on backoff.
package queue
