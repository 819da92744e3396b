// Package archive bundles converted queue items into a zip archive.
//
// Items are deduplicated by the SHA-256 digest of their converted content;
// the first occurrence wins. Entry names come from the source base name with
// the target extension, NFC-normalized and sanitized, and colliding names
// get "_1", "_2", ... before the extension. An archive is either written
// completely or not at all.
package archive
