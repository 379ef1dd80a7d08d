package stage

import (
	"context"
	"fmt"

	"docflow/internal/services"
	"docflow/internal/transaction"
)

// Outcome is the resolved value of a Future.
type Outcome struct {
	Result Result
	Err    error
}

// Future delivers exactly one Outcome.
type Future <-chan Outcome

// Spawn runs fn on its own goroutine and returns a Future for its outcome.
// Panics inside fn resolve the Future with an ErrHandler-marked error.
func Spawn(ctx context.Context, fn func(context.Context) (Result, error)) Future {
	ch := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- Outcome{Err: services.Wrap(services.ErrHandler, "", "async", "handler panicked", fmt.Errorf("%v", r))}
			}
		}()
		result, err := fn(ctx)
		ch <- Outcome{Result: result, Err: err}
	}()
	return ch
}

// Await blocks until f resolves or ctx is done.
func (f Future) Await(ctx context.Context) (Result, error) {
	select {
	case out, ok := <-f:
		if !ok {
			return nil, services.Wrap(services.ErrHandler, "", "async", "future closed without a result", nil)
		}
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AsyncStage adapts a future-returning function to StageHandler.
type AsyncStage func(ctx context.Context, tx *transaction.Transaction) Future

// Handle starts the asynchronous work and waits for it.
func (f AsyncStage) Handle(ctx context.Context, tx *transaction.Transaction) (Result, error) {
	return f(ctx, tx).Await(ctx)
}

// AsyncIntegration adapts a future-returning function to IntegrationHandler.
type AsyncIntegration func(ctx context.Context, tx *transaction.Transaction, args Args) Future

// Invoke starts the asynchronous call and waits for it.
func (f AsyncIntegration) Invoke(ctx context.Context, tx *transaction.Transaction, args Args) (Result, error) {
	return f(ctx, tx, args).Await(ctx)
}

// Run invokes h on a separate goroutine and returns a Future, so callers can
// wait on the handler and a deadline together regardless of whether h blocks.
func Run(ctx context.Context, h StageHandler, tx *transaction.Transaction) Future {
	return Spawn(ctx, func(ctx context.Context) (Result, error) {
		return h.Handle(ctx, tx)
	})
}
