package raster

import (
	"context"
	"image"
	"image/color"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/stage"
)

// Primitives returns the production primitives for a pipeline.
func Primitives() pipeline.Primitives {
	return pipeline.Primitives{
		Compressor: Compressor{},
		Decoder:    HEICDecoder{},
		Rasterizer: SVGRasterizer{},
		Canvas:     Canvas{},
	}
}

// Encoder probes one output format with a tiny round trip.
type Encoder struct {
	Format format.Format
}

// HealthCheck encodes a 2×2 image and decodes it again.
func (e Encoder) HealthCheck(ctx context.Context) stage.Health {
	name := e.Format.String() + " encoder"
	if err := ctx.Err(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 200, A: 255})
	data, err := Encode(img, e.Format, 0.7)
	if err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	if _, err := Decode(blob.File{Format: e.Format, Data: data}); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

// HealthCheck reports the SVG rasterizer status.
func (SVGRasterizer) HealthCheck(ctx context.Context) stage.Health {
	const probe = `<svg xmlns="http://www.w3.org/2000/svg" width="2" height="2"><rect width="2" height="2" fill="red"/></svg>`
	if _, err := RenderSVG([]byte(probe), 2); err != nil {
		return stage.Unhealthy("svg rasterizer", err.Error())
	}
	return stage.Healthy("svg rasterizer")
}

// Checkers lists a checker per output format plus the vector rasterizer.
func Checkers() []stage.Checker {
	out := make([]stage.Checker, 0, len(format.Outputs())+1)
	for _, f := range format.Outputs() {
		out = append(out, Encoder{Format: f})
	}
	return append(out, SVGRasterizer{})
}
