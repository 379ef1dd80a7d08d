package testsupport

import (
	"path/filepath"
	"testing"

	"docflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The API server is disabled unless WithAPIBind is supplied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = ""
	cfgVal.Engine.ProcessingInterval = 1
	cfgVal.Engine.RetryBackoff = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIBind enables the API server on the given address.
func WithAPIBind(bind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = bind
	}
}

// WithAPIToken requires bearer authentication on the API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithStageEndpoint binds a stage to a webhook endpoint.
func WithStageEndpoint(stage, endpoint string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Handlers.Stages == nil {
			b.cfg.Handlers.Stages = map[string]string{}
		}
		b.cfg.Handlers.Stages[stage] = endpoint
	}
}

// WithIntegrationEndpoint binds an integration to a webhook endpoint.
func WithIntegrationEndpoint(name, endpoint string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Handlers.Integrations == nil {
			b.cfg.Handlers.Integrations = map[string]string{}
		}
		b.cfg.Handlers.Integrations[name] = endpoint
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithMaxQueueSize bounds pending plus processing transactions.
func WithMaxQueueSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.MaxQueueSize = n
	}
}
