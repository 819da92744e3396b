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

	"pixelbatch/internal/format"
)

//go:embed sample_config.toml
var sampleConfig string

// Conversion holds the pipeline tuning knobs and the tier selection.
type Conversion struct {
	OutputFormat              string  `toml:"output_format"`
	Tier                      string  `toml:"tier"`
	ConcurrencyBudget         int     `toml:"concurrency_budget"`
	CompressionThresholdBytes int64   `toml:"compression_threshold_bytes"`
	MaxSizeMB                 float64 `toml:"max_size_mb"`
	MaxDimension              int     `toml:"max_dimension"`
	InitialQuality            float64 `toml:"initial_quality"`
	ExportQuality             float64 `toml:"export_quality"`
	ConversionTimeoutMS       int     `toml:"conversion_timeout_ms"`
	GIFMaxDimension           int     `toml:"gif_max_dimension"`
	GIFQuantLevels            int     `toml:"gif_quant_levels"`
	SVGDefaultDimension       int     `toml:"svg_default_dimension"`
	PreviewDimension          int     `toml:"preview_dimension"`
}

// Paths contains output locations.
type Paths struct {
	OutputDir   string `toml:"output_dir"`
	ArchiveName string `toml:"archive_name"`
	LogDir      string `toml:"log_dir"`
}

// API contains the local HTTP surface settings.
type API struct {
	Bind string `toml:"bind"`
}

// Notifications configures ntfy delivery. An empty topic disables it.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pixelbatch.
//
// Configuration sections:
//   - Conversion: target format, tier, pipeline thresholds
//   - Paths: output directory, archive name, log directory
//   - API: bind address for `pixelbatch serve`
//   - Notifications: ntfy topic for batch events
//   - Logging: log format and level
type Config struct {
	Conversion    Conversion    `toml:"conversion"`
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
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
		decoder.DisallowUnknownFields()
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
	projectPath, err := filepath.Abs("pixelbatch.toml")
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

// Budget returns the number of conversions allowed in flight: the explicit
// override when positive, otherwise the tier's value.
func (c *Config) Budget() int {
	if c.Conversion.ConcurrencyBudget > 0 {
		return c.Conversion.ConcurrencyBudget
	}
	return LookupTier(c.Conversion.Tier).Concurrency
}

// Output returns the configured output format. A validated config always
// names an output format.
func (c *Config) Output() format.Format {
	f, _ := format.ParseOutput(c.Conversion.OutputFormat)
	return f
}

// MaxFileBytes returns the largest source accepted at ingestion.
func (c *Config) MaxFileBytes() int64 {
	return LookupTier(c.Conversion.Tier).MaxFileBytes
}

// ConversionTimeout returns the per-item pipeline deadline.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.ConversionTimeoutMS) * time.Millisecond
}

// ArchivePath returns the absolute destination of the zip archive.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.Paths.OutputDir, c.Paths.ArchiveName)
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
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

// ExpandPath exposes the path expansion rules for other packages.
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
