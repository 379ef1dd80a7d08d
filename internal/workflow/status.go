package workflow

import (
	"context"

	"docflow/internal/queue"
	"docflow/internal/stage"
)

// StatusSummary is a read-only snapshot of the coordinator.
type StatusSummary struct {
	EngineID      string                  `json:"engine_id"`
	Running       bool                    `json:"running"`
	LastError     string                  `json:"last_error,omitempty"`
	Queue         queue.Stats             `json:"queue"`
	Metrics       Metrics                 `json:"metrics"`
	Alerts        []Alert                 `json:"alerts,omitempty"`
	StageHandlers []string                `json:"stage_handlers"`
	Integrations  []string                `json:"integrations"`
	StageHealth   map[string]stage.Health `json:"stage_health,omitempty"`
}

// Status returns the latest coordinator information. It is safe to poll.
func (c *Coordinator) Status(ctx context.Context) StatusSummary {
	c.mu.RLock()
	running := c.running
	lastErr := c.lastErr
	c.mu.RUnlock()

	summary := StatusSummary{
		EngineID:      c.cfg.EngineID,
		Running:       running,
		Queue:         c.queue.Stats(),
		Metrics:       c.MetricsSnapshot(),
		Alerts:        c.ActiveAlerts(),
		StageHandlers: c.StageHandlerNames(),
		Integrations:  c.IntegrationNames(),
		StageHealth:   c.stageHealth(ctx),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

func (c *Coordinator) stageHealth(ctx context.Context) map[string]stage.Health {
	c.regMu.RLock()
	checkers := make(map[string]stage.HealthChecker)
	for st, h := range c.stages {
		if hc, ok := h.(stage.HealthChecker); ok {
			checkers[string(st)] = hc
		}
	}
	for name, h := range c.integrations {
		if hc, ok := h.(stage.HealthChecker); ok {
			checkers[name] = hc
		}
	}
	c.regMu.RUnlock()

	if len(checkers) == 0 {
		return nil
	}
	health := make(map[string]stage.Health, len(checkers))
	for name, hc := range checkers {
		health[name] = hc.HealthCheck(ctx)
	}
	return health
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
