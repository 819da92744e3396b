// Package config loads, normalizes, and validates pixelbatch configuration.
//
// Configuration is TOML. Load resolves the file (explicit path, then
// ~/.config/pixelbatch/config.toml, then ./pixelbatch.toml), decodes it over
// Default, applies PIXELBATCH_* environment overrides, expands paths, and runs
// Validate. The tier table lives here too: it fixes the concurrency budget and
// the largest file accepted at ingestion.
package config
