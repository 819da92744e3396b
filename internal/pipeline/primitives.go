package pipeline

import (
	"context"
	"image"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
)

// CompressOptions bounds the compressor output.
type CompressOptions struct {
	MaxSizeMB      float64
	MaxDimension   int
	InitialQuality float64
}

// Compressor shrinks a raster file, keeping its format. progress receives
// values in [0,100].
type Compressor interface {
	Compress(ctx context.Context, src blob.File, opts CompressOptions, progress func(float64)) (blob.File, error)
}

// Decoder turns a proprietary container (HEIC/HEIF) into a PNG file.
type Decoder interface {
	DecodeToPNG(ctx context.Context, src blob.File) (blob.File, error)
}

// Rasterizer renders a vector document onto a white PNG. Documents without an
// intrinsic size use defaultSide for the missing dimension.
type Rasterizer interface {
	Rasterize(ctx context.Context, src blob.File, defaultSide int) (blob.File, error)
}

// Canvas decodes bitmaps and allocates drawing surfaces.
type Canvas interface {
	DecodeBitmap(ctx context.Context, src blob.File) (image.Image, error)
	NewSurface(width, height int) (Surface, error)
}

// Surface is a fixed-size RGBA drawing target.
type Surface interface {
	Size() (width, height int)
	// DrawBitmap scales img to fill the surface.
	DrawBitmap(img image.Image)
	// Pixels returns a copy of the surface as RGBA bytes, 4 per pixel.
	Pixels() []uint8
	SetPixels(pix []uint8) error
	// Export encodes the surface. quality in (0,1] applies to lossy targets.
	Export(target format.Format, quality float64) ([]byte, error)
}

// Acquirer registers converted output for an owner.
type Acquirer interface {
	Acquire(owner string, kind blob.Kind, mime string, data []byte) blob.Handle
}

// Primitives bundles the concrete image operations a Pipeline needs.
type Primitives struct {
	Compressor Compressor
	Decoder    Decoder
	Rasterizer Rasterizer
	Canvas     Canvas
}
