package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"pixelbatch/internal/config"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// overrides applies per-invocation flags on top of the loaded file and
// revalidates the result.
type overrides struct {
	format string
	tier   string
	budget int
}

func registerOverrides(cmd *cobra.Command) *overrides {
	o := &overrides{}
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "Output format (jpeg, png, gif, webp, avif)")
	cmd.Flags().StringVar(&o.tier, "tier", "", "Plan tier (tier1, tier2, tier3)")
	cmd.Flags().IntVar(&o.budget, "budget", 0, "Concurrent conversions (0 derives from the tier)")
	return o
}

func (o *overrides) apply(cfg *config.Config) (*config.Config, error) {
	out := *cfg
	if value := strings.TrimSpace(o.format); value != "" {
		f, ok := format.ParseOutput(value)
		if !ok {
			return nil, fmt.Errorf("unsupported output format %q", value)
		}
		out.Conversion.OutputFormat = f.MIME()
	}
	if value := strings.TrimSpace(o.tier); value != "" {
		out.Conversion.Tier = strings.ToLower(value)
	}
	if o.budget != 0 {
		out.Conversion.ConcurrencyBudget = o.budget
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
