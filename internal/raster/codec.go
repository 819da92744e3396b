package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
)

// ErrNoEncoder is returned when a format can be read but not written.
var ErrNoEncoder = errors.New("no encoder available")

// avifSpeed trades encode time for size; 10 is fastest.
const avifSpeed = 8

// Decode reads a raster file into an image. Vector sources must be
// rasterized first.
func Decode(f blob.File) (image.Image, error) {
	r := bytes.NewReader(f.Data)
	var (
		img image.Image
		err error
	)
	switch f.Format {
	case format.JPEG, format.PNG, format.GIF:
		img, err = imaging.Decode(r, imaging.AutoOrientation(true))
	case format.WebP:
		img, err = webp.Decode(r)
	case format.AVIF:
		img, err = avif.Decode(r)
	case format.HEIC:
		img, err = heic.Decode(r)
	default:
		return nil, fmt.Errorf("decode %s: unsupported raster format", f.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Format, err)
	}
	return img, nil
}

// Encode writes img in the target format. quality in (0,1] applies to lossy
// formats and is ignored otherwise.
func Encode(img image.Image, target format.Format, quality float64) ([]byte, error) {
	q := qualityPercent(quality)
	var buf bytes.Buffer
	var err error
	switch target {
	case format.JPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q))
	case format.PNG:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	case format.GIF:
		err = imaging.Encode(&buf, img, imaging.GIF, imaging.GIFNumColors(256))
	case format.WebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(q)})
	case format.AVIF:
		err = avif.Encode(&buf, img, avif.Options{Quality: q, QualityAlpha: q, Speed: avifSpeed})
	case format.HEIC:
		return nil, fmt.Errorf("encode %s: %w", target, ErrNoEncoder)
	default:
		return nil, fmt.Errorf("encode %s: unsupported output format", target)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", target, err)
	}
	return buf.Bytes(), nil
}

func qualityPercent(quality float64) int {
	if quality <= 0 || quality > 1 {
		quality = 1
	}
	return max(1, min(100, int(math.Round(quality*100))))
}
