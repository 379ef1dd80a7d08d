package preflight

import (
	"context"
	"fmt"
	"sort"

	"docflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Optional bool   `json:"optional,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// Endpoint checks run only for configured endpoints.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	for _, name := range sortedKeys(cfg.Handlers.Stages) {
		results = append(results, CheckEndpoint(ctx, fmt.Sprintf("Stage %s", name), cfg.Handlers.Stages[name]))
	}
	for _, name := range sortedKeys(cfg.Handlers.Integrations) {
		results = append(results, CheckEndpoint(ctx, fmt.Sprintf("Integration %s", name), cfg.Handlers.Integrations[name]))
	}
	if cfg.Notifications.NtfyTopic != "" {
		check := CheckEndpoint(ctx, "ntfy", cfg.Notifications.NtfyTopic)
		check.Optional = true
		results = append(results, check)
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
