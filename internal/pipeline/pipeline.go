package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/services"
	"pixelbatch/internal/stage"
)

// ProgressFunc receives integer progress in [0,100], never decreasing.
type ProgressFunc func(percent int)

// Job names the item being converted and its inputs.
type Job struct {
	ItemID string
	Source blob.File
	Target format.Format
}

// Normalization records which pre-processing path ran.
type Normalization string

const (
	NormalizedNone   Normalization = ""
	NormalizedVector Normalization = "vector"
	NormalizedHEIF   Normalization = "heif"
)

// Result is a successful conversion.
type Result struct {
	File          blob.File
	Handle        blob.Handle
	Normalization Normalization
	Compressed    bool
	Reencoded     bool
	Duration      time.Duration
}

// Pipeline runs conversions. It is safe for concurrent use; each Convert
// call is independent.
type Pipeline struct {
	prims    Primitives
	acquirer Acquirer
	opts     Options
	logger   *slog.Logger
}

// New constructs a Pipeline. A zero Timeout disables the deadline.
func New(prims Primitives, acquirer Acquirer, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		prims:    prims,
		acquirer: acquirer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Options returns the pipeline tuning.
func (p *Pipeline) Options() Options { return p.opts }

type outcome struct {
	file blob.File
	meta Result
	err  error
}

// Convert runs one conversion under the configured deadline. On success the
// output is registered with the acquirer under job.ItemID.
func (p *Pipeline) Convert(ctx context.Context, job Job, progress ProgressFunc) (Result, error) {
	started := time.Now()
	ctx = services.WithItemID(ctx, job.ItemID)

	runCtx, cancel := ctx, func() {}
	if p.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
	}
	defer cancel()

	gate := newProgressGate(progress)
	done := make(chan outcome, 1)
	go func() {
		file, meta, err := p.run(runCtx, job, gate.report)
		done <- outcome{file: file, meta: meta, err: err}
	}()

	select {
	case out := <-done:
		gate.close()
		if out.err != nil {
			if runCtx.Err() != nil {
				return Result{}, p.deadlineError(ctx, runCtx)
			}
			return Result{}, out.err
		}
		res := out.meta
		res.File = out.file
		res.Duration = time.Since(started)
		if p.acquirer != nil {
			res.Handle = p.acquirer.Acquire(job.ItemID, blob.KindOutput, out.file.Type(), out.file.Data)
		}
		if progress != nil {
			progress(stage.ProgressComplete)
		}
		p.logger.Info("conversion completed",
			logging.String(logging.FieldItemID, job.ItemID),
			logging.String("target", job.Target.String()),
			logging.Bytes("input", job.Source.Size()),
			logging.Bytes("output", out.file.Size()),
			logging.Duration("elapsed", res.Duration),
			logging.String(logging.FieldEventType, "conversion_completed"),
		)
		return res, nil

	case <-runCtx.Done():
		gate.close()
		return Result{}, p.deadlineError(ctx, runCtx)
	}
}

func (p *Pipeline) deadlineError(parent, runCtx context.Context) error {
	if parent.Err() != nil {
		return services.Wrap(services.ErrCanceled, "pipeline", "convert", "Conversion canceled", parent.Err())
	}
	msg := fmt.Sprintf("Conversion timeout after %s", p.opts.Timeout)
	logging.WarnWithContext(logging.WithContext(parent, p.logger), "conversion timed out", "conversion_timeout",
		logging.Duration("timeout", p.opts.Timeout),
		logging.String(logging.FieldErrorHint, "retry the item or raise conversion.conversion_timeout_ms"),
		logging.String(logging.FieldImpact, "item marked as failed"),
	)
	return services.Wrap(services.ErrTimeout, "pipeline", "convert", msg, runCtx.Err())
}

// progressGate forwards monotonic progress until closed.
type progressGate struct {
	mu     sync.Mutex
	fn     ProgressFunc
	last   int
	closed bool
}

func newProgressGate(fn ProgressFunc) *progressGate {
	return &progressGate{fn: fn, last: -1}
}

func (g *progressGate) report(percent int) {
	percent = stage.Clamp(percent)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || percent <= g.last {
		return
	}
	g.last = percent
	if g.fn != nil {
		g.fn(percent)
	}
}

func (g *progressGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// run executes the stages. It never reports 100; Convert does once the
// result has won the race.
func (p *Pipeline) run(ctx context.Context, job Job, report ProgressFunc) (blob.File, Result, error) {
	var meta Result
	report(stage.ProgressStart)
	if err := validate(job); err != nil {
		return blob.File{}, meta, err
	}

	working, norm, err := p.normalize(ctx, job, report)
	if err != nil {
		return blob.File{}, meta, err
	}
	meta.Normalization = norm
	if err := ctx.Err(); err != nil {
		return blob.File{}, meta, err
	}

	working, meta.Compressed = p.compress(ctx, job, working, norm, report)
	report(stage.ProgressCompressDone)
	if err := ctx.Err(); err != nil {
		return blob.File{}, meta, err
	}

	out, reencoded, err := p.reencode(ctx, job, working, report)
	if err != nil {
		return blob.File{}, meta, err
	}
	meta.Reencoded = reencoded
	return out, meta, nil
}

func validate(job Job) error {
	switch {
	case job.Source.Empty():
		return services.Wrap(services.ErrValidation, "pipeline", "initialize", "No file content provided for conversion", nil)
	case !job.Source.Format.Known():
		msg := fmt.Sprintf("Unsupported file type %q", job.Source.Type())
		return services.Wrap(services.ErrValidation, "pipeline", "initialize", msg, nil)
	case !job.Target.IsOutput():
		msg := fmt.Sprintf("Unsupported output format %q", job.Target)
		return services.Wrap(services.ErrValidation, "pipeline", "initialize", msg, nil)
	}
	return nil
}

// IsTimeout reports whether err is a conversion deadline failure.
func IsTimeout(err error) bool { return errors.Is(err, services.ErrTimeout) }
