package pipeline

import (
	"context"
	"errors"
	"fmt"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/services"
	"pixelbatch/internal/stage"
)

func (p *Pipeline) stageLogger(ctx context.Context, name stage.Stage) (context.Context, func(msg string, attrs ...logging.Attr)) {
	ctx = services.WithStage(ctx, string(name))
	logger := logging.WithContext(ctx, p.logger)
	return ctx, func(msg string, attrs ...logging.Attr) {
		logger.Debug(msg, logging.Args(attrs...)...)
	}
}

// normalize converts vector and HEIF sources to PNG. At most one path runs.
func (p *Pipeline) normalize(ctx context.Context, job Job, report ProgressFunc) (blob.File, Normalization, error) {
	src := job.Source
	var (
		kind Normalization
		run  func(context.Context) (blob.File, error)
	)
	switch {
	case src.Format.IsVector():
		if p.prims.Rasterizer == nil {
			return blob.File{}, kind, services.Wrap(services.ErrNormalization, "normalizing", "rasterize", "No vector rasterizer available", nil)
		}
		kind = NormalizedVector
		run = func(ctx context.Context) (blob.File, error) {
			return p.prims.Rasterizer.Rasterize(ctx, src, p.opts.SVGDefaultDimension)
		}
	case src.Format.IsHEIF():
		if p.prims.Decoder == nil {
			return blob.File{}, kind, services.Wrap(services.ErrNormalization, "normalizing", "decode", "No HEIC decoder available", nil)
		}
		kind = NormalizedHEIF
		run = func(ctx context.Context) (blob.File, error) {
			return p.prims.Decoder.DecodeToPNG(ctx, src)
		}
	default:
		return src, NormalizedNone, nil
	}

	ctx, debug := p.stageLogger(ctx, stage.Normalizing)
	debug("stage started", logging.String("path", string(kind)), logging.String(logging.FieldEventType, "stage_start"))
	report(stage.ProgressNormalizeStart)
	out, err := run(ctx)
	if err != nil {
		msg := fmt.Sprintf("Failed to convert %s source: %v", src.Format, err)
		return blob.File{}, kind, services.Wrap(services.ErrNormalization, "normalizing", string(kind), msg, err)
	}
	if out.Empty() {
		return blob.File{}, kind, services.Wrap(services.ErrNormalization, "normalizing", string(kind), "Normalization produced no data", nil)
	}
	report(stage.ProgressNormalizeDone)
	debug("stage completed", logging.Bytes("output", out.Size()), logging.String(logging.FieldEventType, "stage_complete"))
	return out, kind, nil
}

// compress shrinks large raster inputs. Failure is a warning: the caller
// continues with the uncompressed file.
func (p *Pipeline) compress(ctx context.Context, job Job, working blob.File, norm Normalization, report ProgressFunc) (blob.File, bool) {
	if norm == NormalizedVector || working.Format.IsVector() || working.Size() <= p.opts.CompressionThreshold || p.prims.Compressor == nil {
		report(stage.ProgressNormalizeDone)
		return working, false
	}

	ctx, debug := p.stageLogger(ctx, stage.Compressing)
	opts := p.opts.compressOptionsFor(working.Size())
	debug("stage started",
		logging.Bytes("input", working.Size()),
		logging.Float64("max_size_mb", opts.MaxSizeMB),
		logging.String(logging.FieldEventType, "stage_start"),
	)
	report(stage.ProgressNormalizeDone)
	out, err := p.prims.Compressor.Compress(ctx, working, opts, func(sub float64) {
		report(stage.Remap(sub, stage.ProgressNormalizeDone, stage.ProgressCompressDone))
	})
	if err == nil && out.Empty() {
		err = errors.New("compressor returned no data")
	}
	if err != nil {
		if ctx.Err() != nil {
			return working, false
		}
		warn := services.Wrap(services.ErrCompression, "compressing", "compress", "Compression failed; continuing uncompressed", err)
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "compression failed", "compression_failed",
			logging.Error(warn),
			logging.String(logging.FieldErrorHint, "the source may be corrupt or use an unusual encoding"),
			logging.String(logging.FieldImpact, "output is re-encoded from the uncompressed source"),
		)
		return working, false
	}
	debug("stage completed",
		logging.Bytes("output", out.Size()),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	return out, true
}

// reencode draws the working file onto a surface sized for the target and
// exports it. A working file already in the target format passes through.
func (p *Pipeline) reencode(ctx context.Context, job Job, working blob.File, report ProgressFunc) (blob.File, bool, error) {
	target := job.Target
	if working.Format == target {
		return job.Source.WithFormat(target, working.Data), false, nil
	}
	if p.prims.Canvas == nil {
		return blob.File{}, false, services.Wrap(services.ErrReEncode, "encoding", "surface", "Format conversion failed: no drawing surface available", nil)
	}

	ctx, debug := p.stageLogger(ctx, stage.Encoding)
	debug("stage started",
		logging.String("from", working.Format.String()),
		logging.String("to", target.String()),
		logging.String(logging.FieldEventType, "stage_start"),
	)
	report(stage.ProgressEncodeStart)

	fail := func(op string, err error) error {
		return services.Wrap(services.ErrReEncode, "encoding", op, "Format conversion failed: "+err.Error(), err)
	}

	bitmap, err := p.prims.Canvas.DecodeBitmap(ctx, working)
	if err != nil {
		return blob.File{}, false, fail("decode", err)
	}
	bounds := bitmap.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if target.Palette() {
		width, height = OptimalDimensions(width, height, p.opts.GIFMaxDimension)
	}
	surface, err := p.prims.Canvas.NewSurface(width, height)
	if err != nil {
		return blob.File{}, false, fail("surface", err)
	}
	surface.DrawBitmap(bitmap)
	if target.Palette() {
		pix := surface.Pixels()
		QuantizeChannels(pix, p.opts.GIFQuantLevels)
		if err := surface.SetPixels(pix); err != nil {
			return blob.File{}, false, fail("quantize", err)
		}
	}
	report(stage.ProgressEncodeDone)

	if err := ctx.Err(); err != nil {
		return blob.File{}, false, err
	}
	quality := p.opts.ExportQuality
	if !target.Lossy() {
		quality = 1
	}
	data, err := surface.Export(target, quality)
	if err != nil {
		return blob.File{}, false, fail("export", err)
	}
	if len(data) == 0 {
		return blob.File{}, false, fail("export", errors.New("encoder produced no data"))
	}
	debug("stage completed",
		logging.Int("width", width),
		logging.Int("height", height),
		logging.Bytes("output", int64(len(data))),
		logging.String(logging.FieldEventType, "stage_complete"),
	)
	return job.Source.WithFormat(target, data), true, nil
}
