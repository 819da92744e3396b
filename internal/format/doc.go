// Package format is the closed set of image formats pixelbatch understands.
//
// Every per-format decision (MIME string, archive extension, whether the
// format is lossy, palette-constrained, or accepted only as an input) lives in
// the single table in format.go. Components branch on Format values, never on
// raw MIME strings; Parse and Detect are the only places strings are turned
// into formats.
package format
