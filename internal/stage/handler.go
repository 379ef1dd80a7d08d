package stage

import (
	"context"

	"docflow/internal/transaction"
)

// StageHandler advances a transaction out of the stage it is registered for.
// The returned Result is merged into the processing context; an error fails
// the transaction unless it is marked transient and retries remain.
type StageHandler interface {
	Handle(ctx context.Context, tx *transaction.Transaction) (Result, error)
}

// IntegrationHandler calls an external system on behalf of a stage. Args
// carries stage-specific inputs such as a document locator.
type IntegrationHandler interface {
	Invoke(ctx context.Context, tx *transaction.Transaction, args Args) (Result, error)
}

// HealthChecker is implemented by handlers that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// StageFunc adapts a function to StageHandler.
type StageFunc func(ctx context.Context, tx *transaction.Transaction) (Result, error)

// Handle calls f(ctx, tx).
func (f StageFunc) Handle(ctx context.Context, tx *transaction.Transaction) (Result, error) {
	return f(ctx, tx)
}

// IntegrationFunc adapts a function to IntegrationHandler.
type IntegrationFunc func(ctx context.Context, tx *transaction.Transaction, args Args) (Result, error)

// Invoke calls f(ctx, tx, args).
func (f IntegrationFunc) Invoke(ctx context.Context, tx *transaction.Transaction, args Args) (Result, error) {
	return f(ctx, tx, args)
}
