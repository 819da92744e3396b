package raster

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/pipeline"
)

const (
	compressMaxIterations = 10
	compressQualityStep   = 0.85
	compressScaleStep     = 0.9
	compressMinQuality    = 0.1
	compressMinSide       = 16
)

// Compressor shrinks a raster file toward a byte budget, keeping its format.
// Lossy formats lower quality first and then scale down; lossless formats
// only scale down. The smallest attempt is returned when the budget cannot
// be met, or the source itself when nothing beat it and no resize was needed.
type Compressor struct{}

// Compress implements pipeline.Compressor.
func (Compressor) Compress(ctx context.Context, src blob.File, opts pipeline.CompressOptions, progress func(float64)) (blob.File, error) {
	report := func(v float64) {
		if progress != nil {
			progress(v)
		}
	}
	report(0)
	img, err := Decode(src)
	if err != nil {
		return blob.File{}, fmt.Errorf("compress: %w", err)
	}
	best := src.Data
	if opts.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
			best = nil
		}
	}
	report(10)

	target := int64(opts.MaxSizeMB * 1024 * 1024)
	quality := opts.InitialQuality
	if quality <= 0 || quality > 1 {
		quality = 1
	}
	lossy := src.Format.Lossy()
	for i := range compressMaxIterations {
		if err := ctx.Err(); err != nil {
			return blob.File{}, err
		}
		data, err := Encode(img, src.Format, quality)
		if err != nil {
			return blob.File{}, fmt.Errorf("compress: %w", err)
		}
		if best == nil || len(data) < len(best) {
			best = data
		}
		report(10 + 90*float64(i+1)/compressMaxIterations)
		if int64(len(data)) <= target {
			break
		}
		if lossy && quality > compressMinQuality {
			quality = max(compressMinQuality, quality*compressQualityStep)
			continue
		}
		next, ok := shrink(img)
		if !ok {
			break
		}
		img = next
	}
	report(100)
	return src.WithFormat(src.Format, best), nil
}

func shrink(img image.Image) (image.Image, bool) {
	b := img.Bounds()
	w := int(float64(b.Dx()) * compressScaleStep)
	h := int(float64(b.Dy()) * compressScaleStep)
	if w < compressMinSide || h < compressMinSide {
		return nil, false
	}
	return imaging.Resize(img, w, h, imaging.Lanczos), true
}
