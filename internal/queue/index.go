package queue

import (
	"sort"
	"time"

	"docflow/internal/transaction"
)

// trimCompleted drops the oldest completed records beyond MaxCompleted.
// Callers hold q.mu.
func (q *Queue) trimCompleted(now time.Time) []Event {
	var events []Event
	for q.completed.Len() > q.opts.MaxCompleted {
		front := q.completed.Front()
		events = append(events, q.evict(front.Value.(string), now))
	}
	return events
}

// evict removes a completed record from the arena. Callers hold q.mu.
func (q *Queue) evict(id string, now time.Time) Event {
	e := q.arena[id]
	q.completed.Remove(e.doneElem)
	delete(q.arena, id)
	q.totals.evicted++
	return q.stamp(Event{Kind: EventEvicted, At: now, Transaction: e.tx.Clone()})
}

// Sweep evicts completed records older than CompletedTTL and returns how many
// were removed.
func (q *Queue) Sweep() int {
	if q.opts.CompletedTTL <= 0 {
		return 0
	}
	now := q.now()
	cutoff := now.Add(-q.opts.CompletedTTL)

	q.mu.Lock()
	var events []Event
	for front := q.completed.Front(); front != nil; front = q.completed.Front() {
		e := q.arena[front.Value.(string)]
		if e.tx.CompletedAt == nil || e.tx.CompletedAt.After(cutoff) {
			break
		}
		events = append(events, q.evict(e.tx.ID, now))
	}
	q.mu.Unlock()

	q.notify(events...)
	return len(events)
}

// Get returns a snapshot of the transaction with id.
func (q *Queue) Get(id string) (*transaction.Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.arena[id]
	if !ok {
		return nil, false
	}
	return e.tx.Clone(), true
}

// AtStage returns snapshots of live transactions currently at stage, oldest first.
func (q *Queue) AtStage(stage transaction.Stage) []*transaction.Transaction {
	q.mu.Lock()
	ids := q.byStage[stage]
	out := make([]*transaction.Transaction, 0, len(ids))
	for id := range ids {
		out = append(out, q.arena[id].tx.Clone())
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Completed returns snapshots of the completed index, most recent first,
// limited to n entries when n > 0.
func (q *Queue) Completed(n int) []*transaction.Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*transaction.Transaction
	for elem := q.completed.Back(); elem != nil; elem = elem.Prev() {
		if n > 0 && len(out) >= n {
			break
		}
		out = append(out, q.arena[elem.Value.(string)].tx.Clone())
	}
	return out
}
