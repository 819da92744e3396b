package raster

import (
	"context"
	"image"

	"github.com/disintegration/imaging"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
)

// Previewer renders small PNG thumbnails for queued sources.
type Previewer struct {
	// Side bounds both thumbnail dimensions.
	Side int
	// VectorSide is used for vector documents without an intrinsic size.
	VectorSide int
}

// Preview decodes src and fits it within Side×Side.
func (p Previewer) Preview(ctx context.Context, src blob.File) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		img image.Image
		err error
	)
	if src.Format.IsVector() {
		img, err = RenderSVG(src.Data, p.VectorSide)
	} else {
		img, err = Decode(src)
	}
	if err != nil {
		return nil, err
	}
	if p.Side > 0 {
		img = imaging.Fit(img, p.Side, p.Side, imaging.Lanczos)
	}
	return Encode(img, format.PNG, 1)
}
