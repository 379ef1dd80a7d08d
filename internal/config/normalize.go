package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeNotifications()
	c.normalizeHandlers()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DOCFLOW_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.EngineID = strings.TrimSpace(c.Engine.EngineID)
	if c.Engine.EngineID == "" {
		c.Engine.EngineID = defaultEngineID
	}
	if c.Engine.MaxConcurrency <= 0 {
		c.Engine.MaxConcurrency = c.Engine.BatchSize
	}
	if c.Engine.RetryAttempts < 0 {
		c.Engine.RetryAttempts = 0
	}
	if c.Engine.StageTimeouts == nil {
		c.Engine.StageTimeouts = map[string]int{}
	}
	normalized := make(map[string]int, len(c.Engine.StageTimeouts))
	for stage, seconds := range c.Engine.StageTimeouts {
		normalized[strings.ToLower(strings.TrimSpace(stage))] = seconds
	}
	c.Engine.StageTimeouts = normalized
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DOCFLOW_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeHandlers() {
	c.Handlers.Stages = normalizeEndpoints(c.Handlers.Stages)
	c.Handlers.Integrations = normalizeEndpoints(c.Handlers.Integrations)
	if c.Handlers.RequestTimeout <= 0 {
		c.Handlers.RequestTimeout = defaultHandlerRequestTimeout
	}
}

func normalizeEndpoints(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for name, url := range values {
		name = strings.ToLower(strings.TrimSpace(name))
		url = strings.TrimSpace(url)
		if name == "" || url == "" {
			continue
		}
		out[name] = url
	}
	return out
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
