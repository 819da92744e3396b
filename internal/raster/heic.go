package raster

import (
	"context"
	"fmt"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
)

// HEICDecoder converts HEIC/HEIF containers to PNG.
type HEICDecoder struct{}

// DecodeToPNG implements pipeline.Decoder.
func (HEICDecoder) DecodeToPNG(ctx context.Context, src blob.File) (blob.File, error) {
	if err := ctx.Err(); err != nil {
		return blob.File{}, err
	}
	if !src.Format.IsHEIF() {
		return blob.File{}, fmt.Errorf("heic decode: source is %s", src.Format)
	}
	img, err := Decode(src)
	if err != nil {
		return blob.File{}, err
	}
	data, err := Encode(img, format.PNG, 1)
	if err != nil {
		return blob.File{}, err
	}
	return src.WithFormat(format.PNG, data), nil
}
