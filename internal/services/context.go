package services

import "context"

type contextKey string

const (
	transactionIDKey contextKey = "transaction_id"
	stageKey         contextKey = "stage"
	loopKey          contextKey = "loop"
	requestIDKey     contextKey = "request_id"
)

// WithTransactionID annotates context with the transaction identifier.
func WithTransactionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, transactionIDKey, id)
}

// TransactionIDFromContext extracts the transaction identifier if present.
func TransactionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transactionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the workflow stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithLoop annotates context with the background loop name (processing, signature-monitor, metrics).
func WithLoop(ctx context.Context, loop string) context.Context {
	if loop == "" {
		return ctx
	}
	return context.WithValue(ctx, loopKey, loop)
}

// LoopFromContext returns the loop name if present.
func LoopFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(loopKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
