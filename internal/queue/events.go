package queue

import (
	"time"

	"docflow/internal/transaction"
)

// EventKind names a structural queue mutation.
type EventKind string

const (
	EventAdded        EventKind = "added"
	EventPopped       EventKind = "popped"
	EventStageChanged EventKind = "stage_changed"
	EventCompleted    EventKind = "completed"
	EventFailed       EventKind = "failed"
	EventCancelled    EventKind = "cancelled"
	EventEvicted      EventKind = "evicted"
)

// Event describes one mutation. Transaction is a snapshot taken under the
// queue lock; From and To are set for stage changes.
//
// Observers run outside the lock, so two events may arrive out of order.
// Seq increases with every mutation of a queue; a consumer keeping the
// latest state per transaction should drop events older than the last Seq
// it applied.
type Event struct {
	Seq         uint64
	Kind        EventKind
	At          time.Time
	Transaction *transaction.Transaction
	From        transaction.Stage
	To          transaction.Stage
}

// Observer receives queue events. Implementations must not call back into
// mutating queue methods synchronously.
type Observer interface {
	OnQueueEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnQueueEvent calls f(evt).
func (f ObserverFunc) OnQueueEvent(evt Event) { f(evt) }
