package testsupport

import (
	"path/filepath"
	"testing"

	"winch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Fetch.BaseURL = "http://127.0.0.1:1"
	cfgVal.Fetch.APIKey = "test"
	cfgVal.Workflow.TaskIntervalMin = 0
	cfgVal.Workflow.TaskIntervalMax = 0
	cfgVal.Workflow.QueuePollInterval = 1

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

// WithDedupPolicy overrides the admission dedup policy on the test config.
func WithDedupPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.DedupPolicy = policy
	}
}

// WithFetchBaseURL points the fetch engine client at the given endpoint,
// typically an httptest server.
func WithFetchBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.BaseURL = url
	}
}

// WithAPIToken requires bearer authentication on the test API surface.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithRetentionDays overrides the artifact retention window on the test config.
func WithRetentionDays(days int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cleanup.RetentionDays = days
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
