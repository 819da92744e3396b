// Package services defines shared utilities consumed by the conversion
// pipeline, the scheduler and the archive packager.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, so a failure can be
//     classified (validation, timeout, packaging...) and shown on an item with
//     a human-readable message via Details.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
