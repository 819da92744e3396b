// Package raster implements the image primitives used by the conversion
// pipeline: decoding every supported container, encoding every output
// format, vector rasterization, HEIC decoding, size-targeted compression,
// a drawing surface, and preview thumbnails.
package raster
