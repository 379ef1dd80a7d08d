package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/stage"
	"docflow/internal/transaction"
)

// advance runs stage handlers for tx until it parks at signature_requested,
// completes, or fails. last is the result that moved tx into its current
// stage; it becomes the completion outcome when no later handler runs.
func (c *Coordinator) advance(ctx context.Context, tx *transaction.Transaction, last stage.Result) {
	for {
		current := tx.Stage
		if current.IsTerminal() || current.AwaitsExternalEvent() {
			return
		}

		handler, ok := c.stageHandler(current)
		if !ok {
			if current.IsPostSignature() {
				c.completeTransaction(ctx, tx, last)
				return
			}
			err := services.Wrap(services.ErrMissingHandler, string(current), "resolve handler",
				"no handler registered for stage", nil)
			c.failTransaction(ctx, tx, err, 0)
			return
		}

		result, attempts, err := c.invokeStage(ctx, tx, handler)
		if err != nil {
			c.failTransaction(ctx, tx, err, attempts)
			return
		}

		next, ok := current.Next()
		if !ok {
			return
		}
		if next == transaction.StageCompleted {
			c.completeTransaction(ctx, tx, result)
			return
		}
		if !c.queue.UpdateStage(tx.ID, next, result.Map()) {
			err := services.Wrap(services.ErrHandler, string(current), "advance",
				fmt.Sprintf("queue rejected move to %s", next), nil)
			c.failTransaction(ctx, tx, err, attempts)
			return
		}
		refreshed, ok := c.queue.Get(tx.ID)
		if !ok {
			return
		}
		tx = refreshed
		last = result
		c.stageEntered(ctx, tx, result)
	}
}

// stageEntered updates counters and fires the lifecycle event for stages that
// have one.
func (c *Coordinator) stageEntered(ctx context.Context, tx *transaction.Transaction, result stage.Result) {
	var name EventName
	switch tx.Stage {
	case transaction.StageDocumentGenerated:
		c.bump(func(m *Metrics) { m.DocumentsGenerated++ })
		name = EventDocumentGenerated
	case transaction.StageStored:
		c.bump(func(m *Metrics) { m.DocumentsStored++ })
		name = EventDocumentStored
	case transaction.StageSignatureRequested:
		c.bump(func(m *Metrics) { m.SignaturesRequested++ })
		name = EventSignatureRequested
	case transaction.StageSignatureCompleted:
		c.bump(func(m *Metrics) { m.SignaturesCompleted++ })
		name = EventSignatureCompleted
	default:
		return
	}
	logging.WithContext(services.WithTransactionID(ctx, tx.ID), c.logger).Info("stage reached",
		logging.String(logging.FieldEventType, string(name)),
		logging.String(logging.FieldStage, string(tx.Stage)),
		logging.String("document_id", tx.DocumentID),
		logging.String("signature_request_id", tx.SignatureRequestID),
	)
	c.emit(ctx, Event{Name: name, Transaction: tx, Data: result.Clone()})
}

// invokeStage calls handler, retrying transient failures in place up to
// RetryAttempts times with linear backoff.
func (c *Coordinator) invokeStage(ctx context.Context, tx *transaction.Transaction, handler stage.StageHandler) (stage.Result, int, error) {
	attempts := 0
	for {
		attempts++
		result, err := c.callStage(ctx, tx, handler)
		if err == nil {
			return result, attempts, nil
		}
		if !services.IsRetryable(err) || attempts > c.cfg.RetryAttempts {
			return nil, attempts, err
		}

		wait := c.cfg.RetryBackoff * time.Duration(attempts)
		c.queue.Annotate(tx.ID, transaction.EventRetry, map[string]any{
			"stage":   string(tx.Stage),
			"attempt": attempts,
			"error":   err.Error(),
		})
		logging.WarnWithContext(c.stageLogger(ctx, tx), "stage attempt failed; retrying", "stage_retry",
			logging.Int("attempt", attempts),
			logging.Int("max_retries", c.cfg.RetryAttempts),
			logging.Duration("retry_in", wait),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient handler failure; no action needed unless retries run out"),
			logging.String(logging.FieldImpact, "transaction stays in processing until the retry resolves"),
		)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil, attempts, err
			case <-time.After(wait):
			}
		}
	}
}

// callStage invokes handler on its own goroutine under the stage deadline.
// Unclassified errors are marked as handler failures.
func (c *Coordinator) callStage(ctx context.Context, tx *transaction.Transaction, handler stage.StageHandler) (stage.Result, error) {
	name := string(tx.Stage)
	callCtx := c.handlerContext(ctx, tx)
	timeout := c.cfg.stageTimeout(tx.Stage)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}

	result, err := stage.Run(callCtx, handler, tx.Clone()).Await(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, name, "handle",
				fmt.Sprintf("stage handler exceeded %s", timeout), err)
		}
		if services.Kind(err) == services.KindUnknown {
			err = services.Wrap(services.ErrHandler, name, "handle", "stage handler failed", err)
		}
		return nil, err
	}
	return result, nil
}

// handlerContext carries the transaction, stage, a per-call correlation id,
// and the integration registry to handlers.
func (c *Coordinator) handlerContext(ctx context.Context, tx *transaction.Transaction) context.Context {
	ctx = services.WithTransactionID(ctx, tx.ID)
	ctx = services.WithStage(ctx, string(tx.Stage))
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	return stage.WithIntegrations(ctx, c)
}

func (c *Coordinator) stageLogger(ctx context.Context, tx *transaction.Transaction) *slog.Logger {
	ctx = services.WithTransactionID(ctx, tx.ID)
	ctx = services.WithStage(ctx, string(tx.Stage))
	return logging.WithContext(ctx, c.logger)
}

func (c *Coordinator) completeTransaction(ctx context.Context, tx *transaction.Transaction, result stage.Result) {
	if !c.queue.Complete(tx.ID, result.Map()) {
		return
	}
	c.bump(func(m *Metrics) { m.WorkflowsCompleted++ })
	snapshot, ok := c.queue.Get(tx.ID)
	if !ok {
		snapshot = tx
	}
	c.stageLogger(ctx, snapshot).Info("workflow completed",
		logging.String(logging.FieldEventType, "workflow_completed"),
		logging.Duration("processing_time", snapshot.ProcessingDuration()),
		logging.String("document_id", snapshot.DocumentID),
	)
	c.emit(ctx, Event{Name: EventWorkflowCompleted, Transaction: snapshot, Data: result.Clone()})
}
