package webhook

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"docflow/internal/config"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

// Bind registers a webhook client for every stage and integration endpoint in
// cfg.Handlers. It returns the names it bound.
func Bind(co *workflow.Coordinator, cfg *config.Config, logger *slog.Logger) ([]string, error) {
	h := cfg.Handlers
	base := Options{
		Timeout:         time.Duration(h.RequestTimeout) * time.Second,
		BreakerFailures: uint32(max(h.BreakerFailures, 0)),
		BreakerCooldown: time.Duration(h.BreakerCooldown) * time.Second,
		Logger:          logger,
	}

	var bound []string
	for _, name := range sortedKeys(h.Stages) {
		st, ok := transaction.ParseStage(name)
		if !ok {
			return bound, fmt.Errorf("handlers.stages: unknown stage %q", name)
		}
		opts := base
		opts.Name = "stage:" + name
		opts.Endpoint = h.Stages[name]
		client, err := New(opts)
		if err != nil {
			return bound, err
		}
		if err := co.RegisterStageHandler(st, client); err != nil {
			return bound, fmt.Errorf("bind stage %s: %w", name, err)
		}
		bound = append(bound, opts.Name)
	}
	for _, name := range sortedKeys(h.Integrations) {
		opts := base
		opts.Name = name
		opts.Endpoint = h.Integrations[name]
		client, err := New(opts)
		if err != nil {
			return bound, err
		}
		if err := co.RegisterIntegration(name, client); err != nil {
			return bound, fmt.Errorf("bind integration %s: %w", name, err)
		}
		bound = append(bound, name)
	}
	return bound, nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
