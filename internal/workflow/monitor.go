package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/stage"
	"docflow/internal/transaction"
)

// CheckSignatures polls the signature status integration for every
// transaction parked at signature_requested. Completed signatures resume the
// pipeline; declined or expired ones fail the transaction; anything else
// leaves it parked. It returns the number of transactions that left the
// parked state.
func (c *Coordinator) CheckSignatures(ctx context.Context) (int, error) {
	parked := c.queue.AtStage(transaction.StageSignatureRequested)
	if len(parked) == 0 {
		return 0, nil
	}
	integration, ok := c.Integration(c.cfg.SignatureIntegration)
	if !ok {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "signature status integration not registered", "signature_check_skipped",
			logging.String("integration", c.cfg.SignatureIntegration),
			logging.Int("parked", len(parked)),
			logging.String(logging.FieldErrorHint, "register the integration or bind it under handlers.integrations"),
			logging.String(logging.FieldImpact, "parked transactions stay waiting for signature"),
		)
		return 0, nil
	}

	runCtx := context.WithoutCancel(ctx)
	resolved := make([]bool, len(parked))
	var eg errgroup.Group
	eg.SetLimit(c.cfg.MaxConcurrency)
	for idx, tx := range parked {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			resolved[idx] = c.checkSignature(runCtx, integration, tx)
			return nil
		})
	}
	_ = eg.Wait()

	count := 0
	for _, ok := range resolved {
		if ok {
			count++
		}
	}
	return count, ctx.Err()
}

func (c *Coordinator) checkSignature(ctx context.Context, integration stage.IntegrationHandler, tx *transaction.Transaction) (resolved bool) {
	defer func() {
		if r := recover(); r != nil {
			err := services.Wrap(services.ErrHandler, string(tx.Stage), "signature check", "monitor panicked", fmt.Errorf("%v", r))
			c.failTransaction(ctx, tx, err, 0)
			resolved = true
		}
	}()

	result, err := c.callIntegration(ctx, tx, integration, stage.Args{
		stage.KeySignatureRequestID: tx.SignatureRequestID,
	})
	logger := c.stageLogger(ctx, tx)
	if err != nil {
		logging.WarnWithContext(logger, "signature status check failed", "signature_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(services.Kind(err))),
			logging.String("signature_request_id", tx.SignatureRequestID),
			logging.String(logging.FieldErrorHint, "check the signature provider; the next pass retries"),
			logging.String(logging.FieldImpact, "transaction stays waiting for signature"),
		)
		return false
	}

	switch status := result.SignatureStatus(); status {
	case stage.SignatureCompleted:
		if !c.queue.UpdateStage(tx.ID, transaction.StageSignatureCompleted, result.Map()) {
			return false
		}
		current, ok := c.queue.Get(tx.ID)
		if !ok {
			return true
		}
		c.stageEntered(ctx, current, result)
		c.advance(ctx, current, result)
		return true
	case stage.SignatureDeclined, stage.SignatureExpired:
		c.failTransaction(ctx, tx, services.Wrap(services.ErrHandler, string(tx.Stage), "signature check",
			"signature "+status, nil), 0)
		return true
	default:
		logger.Debug("signature still pending", logging.String("signature_status", status))
		return false
	}
}

// callIntegration invokes an integration under the signature stage deadline.
func (c *Coordinator) callIntegration(ctx context.Context, tx *transaction.Transaction, h stage.IntegrationHandler, args stage.Args) (stage.Result, error) {
	callCtx := c.handlerContext(ctx, tx)
	timeout := c.cfg.stageTimeout(tx.Stage)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}
	snapshot := tx.Clone()
	result, err := stage.Spawn(callCtx, func(ctx context.Context) (stage.Result, error) {
		return h.Invoke(ctx, snapshot, args)
	}).Await(callCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
			return nil, services.Wrap(services.ErrTimeout, string(tx.Stage), "signature check",
				fmt.Sprintf("integration exceeded %s", timeout), err)
		}
		return nil, err
	}
	return result, nil
}
