package config

import (
	"fmt"
	"os"
	"strings"

	"pixelbatch/internal/format"
)

func (c *Config) normalize() error {
	c.applyEnv()
	c.normalizeConversion()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := os.LookupEnv("PIXELBATCH_TIER"); ok && strings.TrimSpace(value) != "" {
		c.Conversion.Tier = value
	}
	if value, ok := os.LookupEnv("PIXELBATCH_OUTPUT_FORMAT"); ok && strings.TrimSpace(value) != "" {
		c.Conversion.OutputFormat = value
	}
	if value, ok := os.LookupEnv("PIXELBATCH_NTFY_TOPIC"); ok {
		c.Notifications.NtfyTopic = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeConversion() {
	c.Conversion.Tier = strings.ToLower(strings.TrimSpace(c.Conversion.Tier))
	if c.Conversion.Tier == "" {
		c.Conversion.Tier = defaultTier
	}
	// Accept "webp" or ".jpg" and store the canonical MIME type.
	if f, ok := format.Parse(c.Conversion.OutputFormat); ok {
		c.Conversion.OutputFormat = f.MIME()
	} else {
		c.Conversion.OutputFormat = strings.TrimSpace(c.Conversion.OutputFormat)
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.ArchiveName = strings.TrimSpace(c.Paths.ArchiveName)
	if c.Paths.ArchiveName == "" {
		c.Paths.ArchiveName = defaultArchiveName
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
