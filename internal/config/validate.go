package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"

	"docflow/internal/transaction"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validatePriority(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	if err := c.validateHandlers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	if e.MaxQueueSize <= 0 {
		return errors.New("engine.max_queue_size must be positive")
	}
	if e.BatchSize <= 0 {
		return errors.New("engine.batch_size must be positive")
	}
	if e.MaxConcurrency <= 0 {
		return errors.New("engine.max_concurrency must be positive")
	}
	if err := ensurePositiveMap(map[string]int{
		"engine.processing_interval":      e.ProcessingInterval,
		"engine.signature_check_interval": e.SignatureCheckInterval,
		"engine.metrics_interval":         e.MetricsInterval,
		"engine.shutdown_timeout":         e.ShutdownTimeout,
	}); err != nil {
		return err
	}
	if e.CompletedTTL < 0 {
		return errors.New("engine.completed_ttl must be >= 0")
	}
	if e.MaxCompleted < 0 {
		return errors.New("engine.max_completed must be >= 0")
	}
	if e.RetryBackoff < 0 {
		return errors.New("engine.retry_backoff must be >= 0")
	}
	for _, stage := range sortedKeys(e.StageTimeouts) {
		if stage != DefaultStageTimeoutKey {
			if _, ok := transaction.ParseStage(stage); !ok {
				return fmt.Errorf("engine.stage_timeouts: unknown stage %q", stage)
			}
		}
		if e.StageTimeouts[stage] < 0 {
			return fmt.Errorf("engine.stage_timeouts.%s must be >= 0", stage)
		}
	}
	return nil
}

func (c *Config) validatePriority() error {
	if c.Priority.DeadlineHorizonHours < 0 {
		return errors.New("priority.deadline_horizon_hours must be >= 0")
	}
	if c.Priority.HighValueThreshold < 0 {
		return errors.New("priority.high_value_threshold must be >= 0")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	ratios := map[string]float64{
		"alerts.queue_utilization":   c.Alerts.QueueUtilization,
		"alerts.min_conversion_rate": c.Alerts.MinConversionRate,
		"alerts.max_error_rate":      c.Alerts.MaxErrorRate,
	}
	for _, key := range sortedKeys(ratios) {
		if value := ratios[key]; value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	if c.Alerts.MinConversionSample < 0 {
		return errors.New("alerts.min_conversion_sample must be >= 0")
	}
	return nil
}

func (c *Config) validateHandlers() error {
	for _, stage := range sortedKeys(c.Handlers.Stages) {
		parsed, ok := transaction.ParseStage(stage)
		if !ok || parsed.IsTerminal() {
			return fmt.Errorf("handlers.stages: %q is not a handler stage", stage)
		}
		if err := validateEndpoint("handlers.stages."+stage, c.Handlers.Stages[stage]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.Handlers.Integrations) {
		if err := validateEndpoint("handlers.integrations."+name, c.Handlers.Integrations[name]); err != nil {
			return err
		}
	}
	if c.Handlers.BreakerFailures < 0 {
		return errors.New("handlers.breaker_failures must be >= 0")
	}
	if c.Handlers.BreakerCooldown < 0 {
		return errors.New("handlers.breaker_cooldown must be >= 0")
	}
	return nil
}

func validateEndpoint(key, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for _, key := range sortedKeys(values) {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
