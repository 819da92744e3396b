// Package textutil provides file name handling for archive entries and
// exported files: Unicode normalization, sanitization of unsafe characters,
// extension splitting, and collision-free naming.
package textutil
