package workflow

import (
	"strings"
	"time"

	"docflow/internal/config"
	"docflow/internal/transaction"
)

// DefaultSignatureIntegration is the integration the monitor polls.
const DefaultSignatureIntegration = "signature_status"

// AlertThresholds configure the metrics loop.
type AlertThresholds struct {
	QueueUtilization    float64
	MinConversionRate   float64
	MinConversionSample int
	MaxErrorRate        float64
}

// Config holds the coordinator's runtime settings.
type Config struct {
	EngineID               string
	MaxQueueSize           int
	BatchSize              int
	MaxConcurrency         int
	ProcessingInterval     time.Duration
	SignatureCheckInterval time.Duration
	MetricsInterval        time.Duration
	CompletedTTL           time.Duration
	MaxCompleted           int
	RetryAttempts          int
	RetryBackoff           time.Duration
	// StageTimeouts overrides DefaultStageTimeout per stage. Zero disables.
	StageTimeouts       map[transaction.Stage]time.Duration
	DefaultStageTimeout time.Duration
	ShutdownTimeout     time.Duration
	Escalation          transaction.EscalationRules
	Alerts              AlertThresholds
	// SignatureIntegration names the status-check integration.
	SignatureIntegration string
}

// DefaultConfig mirrors the repository configuration defaults.
func DefaultConfig() Config {
	defaults := config.Default()
	return ConfigFromSettings(&defaults)
}

// ConfigFromSettings maps loaded configuration onto coordinator settings.
func ConfigFromSettings(cfg *config.Config) Config {
	timeouts := make(map[transaction.Stage]time.Duration, len(cfg.Engine.StageTimeouts))
	for name := range cfg.Engine.StageTimeouts {
		if name == config.DefaultStageTimeoutKey {
			continue
		}
		if stage, ok := transaction.ParseStage(name); ok {
			timeouts[stage] = cfg.StageTimeout(name)
		}
	}
	return Config{
		EngineID:               cfg.Engine.EngineID,
		MaxQueueSize:           cfg.Engine.MaxQueueSize,
		BatchSize:              cfg.Engine.BatchSize,
		MaxConcurrency:         cfg.Engine.MaxConcurrency,
		ProcessingInterval:     cfg.ProcessingInterval(),
		SignatureCheckInterval: cfg.SignatureCheckInterval(),
		MetricsInterval:        cfg.MetricsInterval(),
		CompletedTTL:           cfg.CompletedTTL(),
		MaxCompleted:           cfg.Engine.MaxCompleted,
		RetryAttempts:          cfg.Engine.RetryAttempts,
		RetryBackoff:           cfg.RetryBackoff(),
		StageTimeouts:          timeouts,
		DefaultStageTimeout:    cfg.StageTimeout(config.DefaultStageTimeoutKey),
		ShutdownTimeout:        cfg.ShutdownTimeout(),
		Escalation: transaction.EscalationRules{
			HighValueThreshold: cfg.Priority.HighValueThreshold,
			DeadlineHorizon:    cfg.DeadlineHorizon(),
		},
		Alerts: AlertThresholds{
			QueueUtilization:    cfg.Alerts.QueueUtilization,
			MinConversionRate:   cfg.Alerts.MinConversionRate,
			MinConversionSample: cfg.Alerts.MinConversionSample,
			MaxErrorRate:        cfg.Alerts.MaxErrorRate,
		},
		SignatureIntegration: DefaultSignatureIntegration,
	}
}

func (c *Config) normalize() {
	c.EngineID = strings.TrimSpace(c.EngineID)
	if c.EngineID == "" {
		c.EngineID = "docflow"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = c.BatchSize
	}
	if c.ProcessingInterval <= 0 {
		c.ProcessingInterval = 2 * time.Second
	}
	if c.SignatureCheckInterval <= 0 {
		c.SignatureCheckInterval = 5 * time.Minute
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if strings.TrimSpace(c.SignatureIntegration) == "" {
		c.SignatureIntegration = DefaultSignatureIntegration
	}
}

func (c *Config) stageTimeout(stage transaction.Stage) time.Duration {
	if d, ok := c.StageTimeouts[stage]; ok {
		return d
	}
	return c.DefaultStageTimeout
}
