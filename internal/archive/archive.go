package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/services"
	"pixelbatch/internal/textutil"
)

// DefaultName is the archive file name offered for download.
const DefaultName = "converted-images.zip"

// Entry describes one file written to the archive.
type Entry struct {
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Digest   string `json:"digest"`
	Size     int64  `json:"size"`
	Deflated bool   `json:"deflated"`
}

// Duplicate records an item skipped because its content was already written.
type Duplicate struct {
	ItemID      string `json:"item_id"`
	Digest      string `json:"digest"`
	DuplicateOf string `json:"duplicate_of"`
}

// Manifest lists what an archive contains.
type Manifest struct {
	Entries []Entry     `json:"entries"`
	Skipped []Duplicate `json:"skipped"`
	Bytes   int64       `json:"bytes"`
}

// Packager writes archives.
type Packager struct {
	logger *slog.Logger
	level  int
	now    func() time.Time
}

// New returns a Packager using the best deflate compression.
func New(logger *slog.Logger) *Packager {
	return &Packager{
		logger: logging.NewComponentLogger(logger, "archive"),
		level:  flate.BestCompression,
		now:    time.Now,
	}
}

// Digest returns the lowercase hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileName derives the archive entry name for a converted item.
func FileName(item queue.Item) string {
	base := textutil.SanitizeFileName(filepath.Base(filepath.ToSlash(item.Source.Name)))
	if base == "." {
		base = ""
	}
	target := item.TargetFormat
	if item.Converted != nil && item.Converted.File.Format.Known() {
		target = item.Converted.File.Format
	}
	return blob.ReplaceExtension(base, target)
}

// Eligible returns the items an archive would include, in queue order.
func Eligible(items []queue.Item) []queue.Item {
	out := make([]queue.Item, 0, len(items))
	for _, item := range items {
		if item.Status == queue.StatusDone && item.Converted != nil {
			out = append(out, item)
		}
	}
	return out
}

// Write builds the archive for the done items and copies it to w. Nothing
// is written to w when building fails.
func (p *Packager) Write(ctx context.Context, w io.Writer, items []queue.Item) (Manifest, error) {
	eligible := Eligible(items)
	if len(eligible) == 0 {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "write", "No converted images to download", nil)
	}

	var buf bytes.Buffer
	manifest, err := p.build(ctx, &buf, eligible)
	if err != nil {
		logging.ErrorWithContext(p.logger, "archive build failed", "archive_failed",
			logging.Int("items", len(eligible)),
			logging.Error(err),
		)
		return Manifest{}, err
	}
	n, err := io.Copy(w, &buf)
	if err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "write", "Failed to write archive", err)
	}
	manifest.Bytes = n
	p.logger.Info("archive written",
		logging.Int("entries", len(manifest.Entries)),
		logging.Int("duplicates", len(manifest.Skipped)),
		logging.Bytes("size", n),
		logging.String(logging.FieldEventType, "archive_written"),
	)
	return manifest, nil
}

func (p *Packager) build(ctx context.Context, w io.Writer, items []queue.Item) (Manifest, error) {
	zw := zip.NewWriter(w)
	level := p.level
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	var manifest Manifest
	seen := make(map[string]string, len(items))
	names := textutil.NewUniqueNamer()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			zw.Close()
			return Manifest{}, services.Wrap(services.ErrCanceled, "archive", "write", "Archive canceled", err)
		}
		data := item.Converted.File.Data
		digest := Digest(data)
		if first, dup := seen[digest]; dup {
			manifest.Skipped = append(manifest.Skipped, Duplicate{ItemID: item.ID, Digest: digest, DuplicateOf: first})
			continue
		}
		seen[digest] = item.ID

		entry := Entry{
			ItemID:   item.ID,
			Name:     names.Claim(FileName(item)),
			Digest:   digest,
			Size:     int64(len(data)),
			Deflated: item.Converted.File.Format.Deflatable(),
		}
		header := &zip.FileHeader{Name: entry.Name, Method: zip.Store, Modified: p.modified(item)}
		if entry.Deflated {
			header.Method = zip.Deflate
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "create entry", fmt.Sprintf("Failed to add %s", entry.Name), err)
		}
		if _, err := fw.Write(data); err != nil {
			zw.Close()
			return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "write entry", fmt.Sprintf("Failed to add %s", entry.Name), err)
		}
		manifest.Entries = append(manifest.Entries, entry)
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "finalize", "Failed to finalize archive", err)
	}
	return manifest, nil
}

func (p *Packager) modified(item queue.Item) time.Time {
	if !item.FinishedAt.IsZero() {
		return item.FinishedAt
	}
	return p.now()
}
