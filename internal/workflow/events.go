package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/transaction"
)

// EventName identifies a lifecycle event callbacks can subscribe to.
type EventName string

const (
	EventTransactionReceived  EventName = "transaction_received"
	EventDocumentGenerated    EventName = "document_generated"
	EventDocumentStored       EventName = "document_stored"
	EventSignatureRequested   EventName = "signature_requested"
	EventSignatureCompleted   EventName = "signature_completed"
	EventWorkflowCompleted    EventName = "workflow_completed"
	EventWorkflowFailed       EventName = "workflow_failed"
	EventTransactionCancelled EventName = "transaction_cancelled"
	EventPerformanceAlert     EventName = "performance_alert"
)

var knownEvents = map[EventName]struct{}{
	EventTransactionReceived:  {},
	EventDocumentGenerated:    {},
	EventDocumentStored:       {},
	EventSignatureRequested:   {},
	EventSignatureCompleted:   {},
	EventWorkflowCompleted:    {},
	EventWorkflowFailed:       {},
	EventTransactionCancelled: {},
	EventPerformanceAlert:     {},
}

// ParseEventName validates an event name.
func ParseEventName(value string) (EventName, bool) {
	name := EventName(value)
	_, ok := knownEvents[name]
	return name, ok
}

// Event is delivered to callbacks. Transaction is a snapshot and may be nil
// for engine-wide events such as performance alerts.
type Event struct {
	Name          EventName
	At            time.Time
	TransactionID string
	Stage         transaction.Stage
	Transaction   *transaction.Transaction
	Data          map[string]any
}

// Callback observes lifecycle events. Returned errors and panics are logged
// and never affect the operation that fired the event.
type Callback func(ctx context.Context, evt Event) error

// RegisterCallback subscribes cb to name. Callbacks run synchronously in
// registration order on the goroutine that fired the event.
func (c *Coordinator) RegisterCallback(name EventName, cb Callback) error {
	if _, ok := knownEvents[name]; !ok {
		return fmt.Errorf("register callback: unknown event %q", name)
	}
	if cb == nil {
		return fmt.Errorf("register callback %q: nil callback", name)
	}
	c.regMu.Lock()
	c.callbacks[name] = append(c.callbacks[name], cb)
	c.regMu.Unlock()
	return nil
}

func (c *Coordinator) emit(ctx context.Context, evt Event) {
	c.regMu.RLock()
	callbacks := append([]Callback(nil), c.callbacks[evt.Name]...)
	c.regMu.RUnlock()
	if len(callbacks) == 0 {
		return
	}
	if evt.At.IsZero() {
		evt.At = c.now()
	}
	if evt.Transaction != nil {
		if evt.TransactionID == "" {
			evt.TransactionID = evt.Transaction.ID
		}
		if evt.Stage == "" {
			evt.Stage = evt.Transaction.Stage
		}
	}
	for idx, cb := range callbacks {
		delivered := evt
		delivered.Transaction = evt.Transaction.Clone()
		delivered.Data = maps.Clone(evt.Data)
		if err := invokeCallback(ctx, cb, delivered); err != nil {
			c.logCallbackFailure(ctx, evt, idx, err)
		}
	}
}

func invokeCallback(ctx context.Context, cb Callback, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrCallback, string(evt.Stage), string(evt.Name), "callback panicked", fmt.Errorf("%v", r))
		}
	}()
	if cbErr := cb(ctx, evt); cbErr != nil {
		if !errors.Is(cbErr, services.ErrCallback) {
			cbErr = services.Wrap(services.ErrCallback, string(evt.Stage), string(evt.Name), "callback returned error", cbErr)
		}
		return cbErr
	}
	return nil
}

func (c *Coordinator) logCallbackFailure(ctx context.Context, evt Event, idx int, err error) {
	if errors.Is(err, context.Canceled) {
		logging.WithContext(ctx, c.logger).Debug("callback cancelled during shutdown",
			logging.String("event", string(evt.Name)),
		)
		return
	}
	attrs := []logging.Attr{
		logging.String("event", string(evt.Name)),
		logging.Int("callback_index", idx),
		logging.String(logging.FieldErrorKind, string(services.Kind(err))),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the callback subscribed to this event"),
		logging.String(logging.FieldImpact, "workflow continues; this subscriber missed the event"),
	}
	if _, ok := services.TransactionIDFromContext(ctx); !ok && evt.TransactionID != "" {
		attrs = append(attrs, logging.String(logging.FieldTransactionID, evt.TransactionID))
	}
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), "event callback failed", "callback_failed", attrs...)
}
