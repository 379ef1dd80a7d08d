package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/transaction"
)

// failTransaction records err against the transaction's current stage and
// moves it to failed. Siblings in the same batch are unaffected.
func (c *Coordinator) failTransaction(ctx context.Context, tx *transaction.Transaction, err error, attempts int) {
	failedAt := tx.Stage
	elapsed := c.elapsed(tx)
	details := services.Details(err)
	record := map[string]any{
		"stage":           string(failedAt),
		"elapsed_seconds": elapsed.Seconds(),
		"error_kind":      string(details.Kind),
	}
	if attempts > 0 {
		record["attempts"] = attempts
	}
	if details.Operation != "" {
		record["operation"] = details.Operation
	}
	if !c.queue.Fail(tx.ID, err, record) {
		return
	}
	c.bump(func(m *Metrics) { m.WorkflowsFailed++ })
	if !errors.Is(err, context.Canceled) {
		c.setLastError(err)
	}

	message := strings.TrimSpace(details.Message)
	if message == "" && err != nil {
		message = strings.TrimSpace(err.Error())
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldStage, string(failedAt)),
		logging.String("resolved_status", string(transaction.StatusFailed)),
		logging.String("error_message", message),
		logging.Duration("elapsed", elapsed),
		logging.Int("attempts", attempts),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldErrorHint, failureHint(details.Kind)),
		logging.String(logging.FieldEventType, "stage_failure"),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(err))
	}
	c.stageLogger(ctx, tx).Error("stage failed", logging.Args(attrs...)...)

	snapshot, ok := c.queue.Get(tx.ID)
	if !ok {
		snapshot = tx
	}
	c.emit(ctx, Event{
		Name:          EventWorkflowFailed,
		TransactionID: tx.ID,
		Stage:         failedAt,
		Transaction:   snapshot,
		Data: map[string]any{
			"stage":           string(failedAt),
			"error":           message,
			"error_kind":      string(details.Kind),
			"elapsed_seconds": elapsed.Seconds(),
		},
	})
}

func (c *Coordinator) elapsed(tx *transaction.Transaction) (d time.Duration) {
	if tx == nil || tx.StartedAt == nil {
		return 0
	}
	if d = c.now().Sub(*tx.StartedAt); d < 0 {
		return 0
	}
	return d
}

func failureHint(kind services.ErrorKind) string {
	switch kind {
	case services.KindMissingHandler:
		return "register a handler for this stage or bind it under handlers.stages"
	case services.KindTimeout:
		return "raise engine.stage_timeouts for this stage or investigate the slow handler"
	case services.KindValidation:
		return "fix the submitted payload and resubmit"
	case services.KindTransient:
		return "retries exhausted; raise engine.retry_attempts or check the external system"
	default:
		return "inspect handler logs for this transaction"
	}
}
