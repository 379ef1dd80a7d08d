package stage

import (
	"context"
	"fmt"
	"strings"

	"docflow/internal/services"
	"docflow/internal/transaction"
)

// Integrations resolves integration handlers by name.
type Integrations interface {
	Integration(name string) (IntegrationHandler, bool)
}

type integrationsKey struct{}

// WithIntegrations makes reg available to stage handlers running under ctx.
func WithIntegrations(ctx context.Context, reg Integrations) context.Context {
	if reg == nil {
		return ctx
	}
	return context.WithValue(ctx, integrationsKey{}, reg)
}

// CallIntegration invokes the named integration registered on ctx. A missing
// registry or name yields an ErrMissingHandler-marked error.
func CallIntegration(ctx context.Context, name string, tx *transaction.Transaction, args Args) (Result, error) {
	stageName, _ := services.StageFromContext(ctx)
	reg, _ := ctx.Value(integrationsKey{}).(Integrations)
	if reg == nil {
		return nil, services.Wrap(services.ErrMissingHandler, stageName, "integration "+name, "no integrations available in context", nil)
	}
	handler, ok := reg.Integration(name)
	if !ok {
		return nil, services.Wrap(services.ErrMissingHandler, stageName, "integration "+name, "integration not registered", nil)
	}
	return handler.Invoke(ctx, tx, args)
}

// RequirePayloadString returns a non-empty string from the transaction payload.
// On failure it returns a services.ErrValidation suitable for stage handlers.
func RequirePayloadString(tx *transaction.Transaction, key string) (string, error) {
	raw, ok := tx.Payload[key]
	if !ok {
		return "", services.Wrap(services.ErrValidation, string(tx.Stage), "read payload",
			fmt.Sprintf("payload field %q is required", key), nil)
	}
	value, ok := raw.(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", services.Wrap(services.ErrValidation, string(tx.Stage), "read payload",
			fmt.Sprintf("payload field %q must be a non-empty string", key), nil)
	}
	return strings.TrimSpace(value), nil
}
