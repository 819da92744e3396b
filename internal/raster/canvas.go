package raster

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/pipeline"
)

// maxSurfacePixels caps surface allocations (about 256 MiB of RGBA).
const maxSurfacePixels = 64 << 20

// Canvas decodes bitmaps and hands out NRGBA surfaces.
type Canvas struct{}

// DecodeBitmap decodes any raster source.
func (Canvas) DecodeBitmap(ctx context.Context, src blob.File) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Decode(src)
}

// NewSurface allocates a transparent width×height surface.
func (Canvas) NewSurface(width, height int) (pipeline.Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface %dx%d: dimensions must be positive", width, height)
	}
	if width*height > maxSurfacePixels {
		return nil, fmt.Errorf("surface %dx%d: exceeds %d pixels", width, height, maxSurfacePixels)
	}
	return &Surface{img: image.NewNRGBA(image.Rect(0, 0, width, height))}, nil
}

// Surface is a non-premultiplied RGBA drawing target.
type Surface struct {
	img *image.NRGBA
}

// Size returns the surface dimensions.
func (s *Surface) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// DrawBitmap scales src to the surface size and replaces its contents.
func (s *Surface) DrawBitmap(src image.Image) {
	w, h := s.Size()
	if b := src.Bounds(); b.Dx() != w || b.Dy() != h {
		src = imaging.Resize(src, w, h, imaging.Lanczos)
	}
	draw.Draw(s.img, s.img.Bounds(), src, src.Bounds().Min, draw.Src)
}

// Pixels returns a copy of the surface bytes.
func (s *Surface) Pixels() []uint8 {
	out := make([]uint8, len(s.img.Pix))
	copy(out, s.img.Pix)
	return out
}

// SetPixels overwrites the surface bytes.
func (s *Surface) SetPixels(pix []uint8) error {
	if len(pix) != len(s.img.Pix) {
		return fmt.Errorf("set pixels: got %d bytes, surface holds %d", len(pix), len(s.img.Pix))
	}
	copy(s.img.Pix, pix)
	return nil
}

// Export encodes the surface.
func (s *Surface) Export(target format.Format, quality float64) ([]byte, error) {
	return Encode(s.img, target, quality)
}
