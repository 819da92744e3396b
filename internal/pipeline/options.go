package pipeline

import (
	"time"

	"pixelbatch/internal/config"
)

// Options tunes a Pipeline.
type Options struct {
	CompressionThreshold int64
	Compress             CompressOptions
	ExportQuality        float64
	Timeout              time.Duration
	GIFMaxDimension      int
	GIFQuantLevels       int
	SVGDefaultDimension  int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	cfg := config.Default()
	return OptionsFromConfig(&cfg)
}

// OptionsFromConfig reads the [conversion] section.
func OptionsFromConfig(cfg *config.Config) Options {
	conv := cfg.Conversion
	return Options{
		CompressionThreshold: conv.CompressionThresholdBytes,
		Compress: CompressOptions{
			MaxSizeMB:      conv.MaxSizeMB,
			MaxDimension:   conv.MaxDimension,
			InitialQuality: conv.InitialQuality,
		},
		ExportQuality:       conv.ExportQuality,
		Timeout:             cfg.ConversionTimeout(),
		GIFMaxDimension:     conv.GIFMaxDimension,
		GIFQuantLevels:      conv.GIFQuantLevels,
		SVGDefaultDimension: conv.SVGDefaultDimension,
	}
}

// compressOptionsFor lowers the size target for inputs already under it, so
// compression still has something to achieve.
func (o Options) compressOptionsFor(size int64) CompressOptions {
	opts := o.Compress
	sizeMB := float64(size) / (1024 * 1024)
	if sizeMB < opts.MaxSizeMB {
		opts.MaxSizeMB = sizeMB * 0.8
	}
	return opts
}
