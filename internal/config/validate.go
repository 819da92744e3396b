package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"pixelbatch/internal/format"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validatePaths(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must be non-negative")
	}
	return c.validateLogging()
}

func (c *Config) validateConversion() error {
	conv := c.Conversion
	if _, ok := format.ParseOutput(conv.OutputFormat); !ok {
		return fmt.Errorf("conversion.output_format %q is not a supported output format", conv.OutputFormat)
	}
	if !KnownTier(conv.Tier) {
		return fmt.Errorf("conversion.tier must be one of tier1, tier2, tier3 (got %q)", conv.Tier)
	}
	if conv.ConcurrencyBudget < 0 {
		return errors.New("conversion.concurrency_budget must be 0 (derive from tier) or positive")
	}
	if conv.CompressionThresholdBytes < 0 {
		return errors.New("conversion.compression_threshold_bytes must be non-negative")
	}
	if conv.MaxSizeMB <= 0 {
		return errors.New("conversion.max_size_mb must be positive")
	}
	if conv.MaxDimension <= 0 {
		return errors.New("conversion.max_dimension must be positive")
	}
	if conv.InitialQuality <= 0 || conv.InitialQuality > 1 {
		return errors.New("conversion.initial_quality must be in (0, 1]")
	}
	if conv.ExportQuality <= 0 || conv.ExportQuality > 1 {
		return errors.New("conversion.export_quality must be in (0, 1]")
	}
	if conv.ConversionTimeoutMS <= 0 {
		return errors.New("conversion.conversion_timeout_ms must be positive")
	}
	if conv.GIFMaxDimension <= 0 {
		return errors.New("conversion.gif_max_dimension must be positive")
	}
	if conv.GIFQuantLevels < 2 || conv.GIFQuantLevels > 256 {
		return errors.New("conversion.gif_quant_levels must be between 2 and 256")
	}
	if conv.SVGDefaultDimension <= 0 {
		return errors.New("conversion.svg_default_dimension must be positive")
	}
	if conv.PreviewDimension <= 0 {
		return errors.New("conversion.preview_dimension must be positive")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ArchiveName != filepath.Base(c.Paths.ArchiveName) {
		return fmt.Errorf("paths.archive_name %q must be a file name, not a path", c.Paths.ArchiveName)
	}
	if filepath.Ext(c.Paths.ArchiveName) != ".zip" {
		return fmt.Errorf("paths.archive_name %q must end in .zip", c.Paths.ArchiveName)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
