package config

const (
	defaultConfigPath             = "~/.config/docflow/config.toml"
	defaultDataDir                = "~/.local/share/docflow"
	defaultLogDir                 = "~/.local/share/docflow/logs"
	defaultAPIBind                = "127.0.0.1:7600"
	defaultEngineID               = "docflow"
	defaultMaxQueueSize           = 10000
	defaultBatchSize              = 10
	defaultMaxConcurrency         = 10
	defaultProcessingInterval     = 2
	defaultSignatureCheckInterval = 300
	defaultMetricsInterval        = 60
	defaultCompletedTTL           = 86400
	defaultMaxCompleted           = 1000
	defaultRetryBackoff           = 5
	defaultShutdownTimeout        = 30
	defaultStageTimeout           = 300
	defaultDeadlineHorizonHours   = 48
	defaultHighValueThreshold     = 1_000_000
	defaultQueueUtilizationAlert  = 0.8
	defaultMinConversionRate      = 0.7
	defaultMinConversionSample    = 10
	defaultMaxErrorRate           = 0.1
	defaultNotifyRequestTimeout   = 10
	defaultHandlerRequestTimeout  = 30
	defaultBreakerFailures        = 5
	defaultBreakerCooldown        = 60
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"

	// DefaultStageTimeoutKey names the fallback entry in engine.stage_timeouts.
	DefaultStageTimeoutKey = "default"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Engine: Engine{
			EngineID:               defaultEngineID,
			MaxQueueSize:           defaultMaxQueueSize,
			BatchSize:              defaultBatchSize,
			MaxConcurrency:         defaultMaxConcurrency,
			ProcessingInterval:     defaultProcessingInterval,
			SignatureCheckInterval: defaultSignatureCheckInterval,
			MetricsInterval:        defaultMetricsInterval,
			CompletedTTL:           defaultCompletedTTL,
			MaxCompleted:           defaultMaxCompleted,
			RetryAttempts:          0,
			RetryBackoff:           defaultRetryBackoff,
			ShutdownTimeout:        defaultShutdownTimeout,
			StageTimeouts: map[string]int{
				DefaultStageTimeoutKey: defaultStageTimeout,
			},
		},
		Priority: Priority{
			DeadlineHorizonHours: defaultDeadlineHorizonHours,
			HighValueThreshold:   defaultHighValueThreshold,
		},
		Alerts: Alerts{
			QueueUtilization:    defaultQueueUtilizationAlert,
			MinConversionRate:   defaultMinConversionRate,
			MinConversionSample: defaultMinConversionSample,
			MaxErrorRate:        defaultMaxErrorRate,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			WorkflowCompleted:  true,
			WorkflowFailed:     true,
			SignatureCompleted: true,
			Alerts:             true,
		},
		Handlers: Handlers{
			Stages:          map[string]string{},
			Integrations:    map[string]string{},
			RequestTimeout:  defaultHandlerRequestTimeout,
			BreakerFailures: defaultBreakerFailures,
			BreakerCooldown: defaultBreakerCooldown,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
