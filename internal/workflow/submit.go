package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/transaction"
)

// ErrAdmissionRejected is returned by Submit when the queue is full. The
// returned error also matches services.ErrCapacity.
var ErrAdmissionRejected = errors.New("admission rejected")

// Submission is a request to start a new transaction.
type Submission struct {
	Type          transaction.Type
	Priority      transaction.Priority
	Payload       map[string]any
	Context       map[string]any
	ParentID      string
	DependencyIDs []string
}

// Submit builds a transaction from sub, scores it, and admits it. It returns
// the new transaction id.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (string, error) {
	typ := sub.Type
	if typ == "" {
		typ = transaction.TypeGeneric
	}
	if _, ok := transaction.ParseType(string(typ)); !ok {
		return "", services.Wrap(services.ErrValidation, "", "submit", fmt.Sprintf("unknown transaction type %q", typ), nil)
	}
	if sub.Priority != 0 && !sub.Priority.Valid() {
		return "", services.Wrap(services.ErrValidation, "", "submit", fmt.Sprintf("invalid priority %d", sub.Priority), nil)
	}

	id := uuid.NewString()
	tx := transaction.New(id, typ, sub.Priority, sub.Payload, c.now())
	tx.MergeContext(sub.Context)
	tx.ParentID = strings.TrimSpace(sub.ParentID)
	tx.DependencyIDs = append([]string(nil), sub.DependencyIDs...)

	logger := logging.WithContext(services.WithTransactionID(ctx, id), c.logger)
	if !c.queue.Admit(tx) {
		stats := c.queue.Stats()
		logging.WarnWithContext(logger, "transaction rejected at admission", "admission_rejected",
			logging.Int("queue_in_flight", stats.Pending+stats.Processing),
			logging.Int("queue_max_size", stats.MaxSize),
			logging.String(logging.FieldErrorHint, "retry later or raise engine.max_queue_size"),
			logging.String(logging.FieldImpact, "transaction was not queued"),
		)
		cause := services.Wrap(services.ErrCapacity, "", "admit",
			fmt.Sprintf("%d of %d slots in use", stats.Pending+stats.Processing, stats.MaxSize), nil)
		return "", fmt.Errorf("%w: %w", ErrAdmissionRejected, cause)
	}

	c.bump(func(m *Metrics) { m.TransactionsReceived++ })
	admitted, _ := c.queue.Get(id)
	if admitted != nil {
		logger.Info("transaction admitted",
			logging.String(logging.FieldEventType, "transaction_admitted"),
			logging.String("type", string(admitted.Type)),
			logging.String("priority", admitted.Priority.String()),
			logging.Float64("complexity", admitted.ComplexityScore),
		)
	}
	c.emit(ctx, Event{Name: EventTransactionReceived, TransactionID: id, Transaction: admitted})
	return id, nil
}

// Cancel withdraws a pending transaction. Transactions already being
// processed cannot be cancelled.
func (c *Coordinator) Cancel(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled by request"
	}
	if !c.queue.Cancel(id, reason) {
		return services.Wrap(services.ErrUnknownTransaction, "", "cancel",
			fmt.Sprintf("transaction %s is not pending", id), nil)
	}
	c.bump(func(m *Metrics) { m.TransactionsCancelled++ })
	snapshot, _ := c.queue.Get(id)
	logging.WithContext(services.WithTransactionID(ctx, id), c.logger).Info("transaction cancelled",
		logging.String(logging.FieldEventType, "transaction_cancelled"),
		logging.String("reason", reason),
	)
	c.emit(ctx, Event{
		Name:          EventTransactionCancelled,
		TransactionID: id,
		Transaction:   snapshot,
		Data:          map[string]any{"reason": reason},
	})
	return nil
}
