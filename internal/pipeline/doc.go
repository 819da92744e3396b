// Package pipeline converts one queued image to its target format.
//
// A conversion runs normalize → compress → re-encode → finalize and reports
// integer progress at fixed checkpoints (0, 10, 20, 20–80 while compressing,
// 85, 90, 100). The concrete image work is delegated to the primitives in
// this package's interfaces so tests can stub them; internal/raster provides
// the production implementations.
//
// Convert races the whole run against a deadline. Whichever finishes first
// wins: after a timeout or cancellation no further progress is forwarded and
// the late result is dropped without acquiring an output handle.
package pipeline
