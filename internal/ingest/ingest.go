// Package ingest turns user-supplied files into queue items. Unknown types,
// empty files and files over the tier's size limit are rejected up front;
// previews are rendered concurrently and a file whose preview fails is
// queued in the error state instead of blocking the others.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
)

// PreviewFailed is the message on items whose preview could not be rendered.
const PreviewFailed = "Failed to generate preview"

// Input is one file offered for conversion.
type Input struct {
	Name     string
	Declared string
	Data     []byte
}

// Rejection explains why an input was not queued.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report summarizes one ingestion call.
type Report struct {
	Added    []string    `json:"added"`
	Failed   []string    `json:"failed"`
	Rejected []Rejection `json:"rejected"`
}

// Previewer renders a PNG thumbnail.
type Previewer interface {
	Preview(ctx context.Context, src blob.File) ([]byte, error)
}

// Dispatcher accepts queue actions.
type Dispatcher interface {
	Dispatch(queue.Action) error
}

// Registry owns preview handles.
type Registry interface {
	Acquire(owner string, kind blob.Kind, mime string, data []byte) blob.Handle
	Release(blob.Handle) bool
}

// Options bounds ingestion.
type Options struct {
	// MaxFileBytes rejects larger inputs; zero disables the check.
	MaxFileBytes int64
	// Concurrency caps parallel preview rendering.
	Concurrency int
}

// Ingestor validates inputs and queues them.
type Ingestor struct {
	store     Dispatcher
	previewer Previewer
	registry  Registry
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

// New constructs an Ingestor. A nil previewer queues items without previews.
func New(store Dispatcher, previewer Previewer, registry Registry, opts Options, logger *slog.Logger) *Ingestor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Ingestor{
		store:     store,
		previewer: previewer,
		registry:  registry,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "ingest"),
		now:       time.Now,
	}
}

// Ingest queues every acceptable input in order with a single AddItems.
func (in *Ingestor) Ingest(ctx context.Context, files []Input) (Report, error) {
	var report Report
	items := make([]queue.Item, 0, len(files))
	for _, file := range files {
		src := blob.New(file.Name, file.Declared, file.Data)
		if reason := in.reject(src); reason != "" {
			report.Rejected = append(report.Rejected, Rejection{Name: file.Name, Reason: reason})
			in.logger.Info("file rejected",
				logging.String("file", file.Name),
				logging.String("reason", reason),
				logging.String(logging.FieldEventType, "file_rejected"),
			)
			continue
		}
		items = append(items, queue.Item{ID: uuid.NewString(), Source: src, AddedAt: in.now()})
	}
	if len(items) == 0 {
		return report, nil
	}

	in.renderPreviews(ctx, items)
	if err := ctx.Err(); err != nil {
		in.releasePreviews(items)
		return report, err
	}
	if err := in.store.Dispatch(queue.AddItems{Items: items}); err != nil {
		in.releasePreviews(items)
		return report, fmt.Errorf("queue files: %w", err)
	}
	for _, item := range items {
		if item.Status == queue.StatusError {
			report.Failed = append(report.Failed, item.ID)
			continue
		}
		report.Added = append(report.Added, item.ID)
	}
	in.logger.Info("files queued",
		logging.Int("added", len(report.Added)),
		logging.Int("failed", len(report.Failed)),
		logging.Int("rejected", len(report.Rejected)),
		logging.String(logging.FieldEventType, "files_queued"),
	)
	return report, nil
}

func (in *Ingestor) reject(src blob.File) string {
	switch {
	case src.Format == format.Unknown:
		kind := src.Declared
		if kind == "" {
			kind = filepath.Ext(src.Name)
		}
		return fmt.Sprintf("Unsupported file type %q", kind)
	case src.Empty():
		return "File is empty"
	case in.opts.MaxFileBytes > 0 && src.Size() > in.opts.MaxFileBytes:
		return fmt.Sprintf("File is %s; the limit is %s",
			humanize.IBytes(uint64(src.Size())), humanize.IBytes(uint64(in.opts.MaxFileBytes)))
	}
	return ""
}

func (in *Ingestor) renderPreviews(ctx context.Context, items []queue.Item) {
	if in.previewer == nil {
		return
	}
	sem := make(chan struct{}, in.opts.Concurrency)
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(item *queue.Item) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			data, err := in.previewer.Preview(ctx, item.Source)
			if err != nil {
				item.Status = queue.StatusError
				item.Error = PreviewFailed
				logging.WarnWithContext(in.logger, "preview failed", "preview_failed",
					logging.String(logging.FieldItemID, item.ID),
					logging.String("file", item.Source.Name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "the file may be corrupt or truncated"),
					logging.String(logging.FieldImpact, "item queued as failed"),
				)
				return
			}
			if in.registry != nil {
				item.Preview = in.registry.Acquire(item.ID, blob.KindPreview, format.PNG.MIME(), data)
			}
		}(&items[i])
	}
	wg.Wait()
}

func (in *Ingestor) releasePreviews(items []queue.Item) {
	if in.registry == nil {
		return
	}
	for _, item := range items {
		in.registry.Release(item.Preview)
	}
}
