package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
)

// SVGRasterizer renders vector documents onto an opaque white background.
type SVGRasterizer struct{}

// Rasterize implements pipeline.Rasterizer.
func (SVGRasterizer) Rasterize(ctx context.Context, src blob.File, defaultSide int) (blob.File, error) {
	if err := ctx.Err(); err != nil {
		return blob.File{}, err
	}
	img, err := RenderSVG(src.Data, defaultSide)
	if err != nil {
		return blob.File{}, err
	}
	data, err := Encode(img, format.PNG, 1)
	if err != nil {
		return blob.File{}, err
	}
	return src.WithFormat(format.PNG, data), nil
}

// RenderSVG draws an SVG document at its intrinsic size. A missing width or
// height falls back to defaultSide.
func RenderSVG(doc []byte, defaultSide int) (*image.NRGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}
	w := int(math.Round(icon.ViewBox.W))
	h := int(math.Round(icon.ViewBox.H))
	if w <= 0 {
		w = defaultSide
	}
	if h <= 0 {
		h = defaultSide
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("svg has no size and no default was given")
	}
	if w*h > maxSurfacePixels {
		return nil, fmt.Errorf("svg %dx%d exceeds %d pixels", w, h, maxSurfacePixels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img, nil
}
