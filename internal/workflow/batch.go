package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docflow/internal/logging"
	"docflow/internal/services"
	"docflow/internal/transaction"
)

// ProcessNextBatch pops up to BatchSize pending transactions and runs each
// through the pipeline concurrently. It returns once every member has parked,
// completed, or failed. Handler work is detached from ctx cancellation so a
// shutdown lets the batch finish.
func (c *Coordinator) ProcessNextBatch(ctx context.Context) (int, error) {
	batch := c.queue.NextBatch(c.cfg.BatchSize)
	if len(batch) == 0 {
		return 0, nil
	}

	batchID := uuid.NewString()
	runCtx := services.WithRequestID(context.WithoutCancel(ctx), batchID)
	logger := logging.WithContext(runCtx, c.logger)
	logger.Debug("batch started", logging.Int("size", len(batch)))

	var eg errgroup.Group
	eg.SetLimit(c.cfg.MaxConcurrency)
	for _, tx := range batch {
		eg.Go(func() error {
			c.processTransaction(runCtx, tx)
			return nil
		})
	}
	_ = eg.Wait()

	logger.Debug("batch finished", logging.Int("size", len(batch)))
	return len(batch), nil
}

// processTransaction isolates one batch member: a panic in coordinator code
// fails only this transaction.
func (c *Coordinator) processTransaction(ctx context.Context, tx *transaction.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			err := services.Wrap(services.ErrHandler, string(tx.Stage), "process", "pipeline panicked", fmt.Errorf("%v", r))
			current, ok := c.queue.Get(tx.ID)
			if !ok {
				current = tx
			}
			c.failTransaction(ctx, current, err, 0)
		}
	}()
	c.advance(ctx, tx, nil)
}
