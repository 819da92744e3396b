package config

const (
	defaultConfigPath                = "~/.config/pixelbatch/config.toml"
	defaultOutputFormat              = "image/webp"
	defaultTier                      = TierFree
	defaultCompressionThresholdBytes = 100 * 1024
	defaultMaxSizeMB                 = 0.5
	defaultMaxDimension              = 2048
	defaultInitialQuality            = 0.7
	defaultExportQuality             = 0.7
	defaultConversionTimeoutMS       = 30000
	defaultGIFMaxDimension           = 800
	defaultGIFQuantLevels            = 8
	defaultSVGDimension              = 800
	defaultPreviewDimension          = 64
	defaultOutputDir                 = "."
	defaultArchiveName               = "converted-images.zip"
	defaultLogDir                    = "~/.local/share/pixelbatch/logs"
	defaultAPIBind                   = "127.0.0.1:7490"
	defaultNtfyTimeoutSeconds        = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Conversion: Conversion{
			OutputFormat:              defaultOutputFormat,
			Tier:                      defaultTier,
			CompressionThresholdBytes: defaultCompressionThresholdBytes,
			MaxSizeMB:                 defaultMaxSizeMB,
			MaxDimension:              defaultMaxDimension,
			InitialQuality:            defaultInitialQuality,
			ExportQuality:             defaultExportQuality,
			ConversionTimeoutMS:       defaultConversionTimeoutMS,
			GIFMaxDimension:           defaultGIFMaxDimension,
			GIFQuantLevels:            defaultGIFQuantLevels,
			SVGDefaultDimension:       defaultSVGDimension,
			PreviewDimension:          defaultPreviewDimension,
		},
		Paths: Paths{
			OutputDir:   defaultOutputDir,
			ArchiveName: defaultArchiveName,
			LogDir:      defaultLogDir,
		},
		API:           API{Bind: defaultAPIBind},
		Notifications: Notifications{RequestTimeoutSeconds: defaultNtfyTimeoutSeconds},
		Logging:       Logging{Format: defaultLogFormat, Level: defaultLogLevel},
	}
}
