package testsupport

import (
	"path/filepath"
	"testing"

	"pixelbatch/internal/config"
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
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithTier selects a tier on the test config.
func WithTier(tier string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.Tier = tier
	}
}

// WithBudget overrides the concurrency budget.
func WithBudget(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.ConcurrencyBudget = n
	}
}

// WithOutputFormat sets the initial output format (MIME or short name).
func WithOutputFormat(value string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.OutputFormat = value
	}
}

// WithTimeoutMS overrides the per-item conversion timeout.
func WithTimeoutMS(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.ConversionTimeoutMS = ms
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
