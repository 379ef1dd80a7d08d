package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Engine contains queue sizing, loop cadence, and stage execution policy.
// Durations are expressed in seconds.
type Engine struct {
	EngineID               string         `toml:"engine_id"`
	MaxQueueSize           int            `toml:"max_queue_size"`
	BatchSize              int            `toml:"batch_size"`
	MaxConcurrency         int            `toml:"max_concurrency"`
	ProcessingInterval     int            `toml:"processing_interval"`
	SignatureCheckInterval int            `toml:"signature_check_interval"`
	MetricsInterval        int            `toml:"metrics_interval"`
	CompletedTTL           int            `toml:"completed_ttl"`
	MaxCompleted           int            `toml:"max_completed"`
	RetryAttempts          int            `toml:"retry_attempts"`
	RetryBackoff           int            `toml:"retry_backoff"`
	ShutdownTimeout        int            `toml:"shutdown_timeout"`
	StageTimeouts          map[string]int `toml:"stage_timeouts"`
}

// Priority contains the admission escalation rules.
type Priority struct {
	DeadlineHorizonHours int     `toml:"deadline_horizon_hours"`
	HighValueThreshold   float64 `toml:"high_value_threshold"`
}

// Alerts contains the thresholds evaluated by the metrics loop.
type Alerts struct {
	QueueUtilization    float64 `toml:"queue_utilization"`
	MinConversionRate   float64 `toml:"min_conversion_rate"`
	MinConversionSample int     `toml:"min_conversion_sample"`
	MaxErrorRate        float64 `toml:"max_error_rate"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	WorkflowCompleted  bool   `toml:"workflow_completed"`
	WorkflowFailed     bool   `toml:"workflow_failed"`
	SignatureCompleted bool   `toml:"signature_completed"`
	Alerts             bool   `toml:"alerts"`
}

// Handlers binds stages and integrations to webhook endpoints.
type Handlers struct {
	Stages          map[string]string `toml:"stages"`
	Integrations    map[string]string `toml:"integrations"`
	RequestTimeout  int               `toml:"request_timeout"`
	BreakerFailures int               `toml:"breaker_failures"`
	BreakerCooldown int               `toml:"breaker_cooldown"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docflow.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Engine: queue capacity, batch sizing, loop intervals, retry and timeout policy
//   - Priority: admission escalation rules
//   - Alerts: metrics loop thresholds
//   - Notifications: ntfy push notification settings
//   - Handlers: webhook-backed stage and integration handlers
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	Priority      Priority      `toml:"priority"`
	Alerts        Alerts        `toml:"alerts"`
	Notifications Notifications `toml:"notifications"`
	Handlers      Handlers      `toml:"handlers"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("docflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the SQLite journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.DataDir, "journal.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "docflow.lock")
}

// StageTimeout returns the handler deadline for stage, falling back to the
// "default" entry. Zero disables the deadline.
func (c *Config) StageTimeout(stage string) time.Duration {
	if seconds, ok := c.Engine.StageTimeouts[stage]; ok {
		return seconds2duration(seconds)
	}
	return seconds2duration(c.Engine.StageTimeouts[DefaultStageTimeoutKey])
}

// ProcessingInterval returns the processing loop cadence.
func (c *Config) ProcessingInterval() time.Duration {
	return seconds2duration(c.Engine.ProcessingInterval)
}

// SignatureCheckInterval returns the signature monitor cadence.
func (c *Config) SignatureCheckInterval() time.Duration {
	return seconds2duration(c.Engine.SignatureCheckInterval)
}

// MetricsInterval returns the metrics loop cadence.
func (c *Config) MetricsInterval() time.Duration {
	return seconds2duration(c.Engine.MetricsInterval)
}

// CompletedTTL returns how long finished transactions stay queryable in memory.
func (c *Config) CompletedTTL() time.Duration {
	return seconds2duration(c.Engine.CompletedTTL)
}

// RetryBackoff returns the base delay between transient stage retries.
func (c *Config) RetryBackoff() time.Duration {
	return seconds2duration(c.Engine.RetryBackoff)
}

// ShutdownTimeout bounds how long Stop waits for each loop.
func (c *Config) ShutdownTimeout() time.Duration {
	return seconds2duration(c.Engine.ShutdownTimeout)
}

// DeadlineHorizon returns the urgent-escalation window.
func (c *Config) DeadlineHorizon() time.Duration {
	return time.Duration(c.Priority.DeadlineHorizonHours) * time.Hour
}

func seconds2duration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
