package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/services"
)

const lockRetryDelay = 50 * time.Millisecond

// WriteFile writes the archive to path atomically. Concurrent writers to the
// same path are serialized by an advisory lock on path + ".lock".
func (p *Packager) WriteFile(ctx context.Context, path string, items []queue.Item) (Manifest, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "prepare", "Failed to create output directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "lock", fmt.Sprintf("Archive %s is busy", filepath.Base(path)), err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release archive lock", logging.Error(err))
		}
	}()

	tmp, err := os.CreateTemp(dir, ".pixelbatch-*.zip.tmp")
	if err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "prepare", "Failed to create temporary archive", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	manifest, err := p.Write(ctx, tmp, items)
	if err != nil {
		tmp.Close()
		return Manifest{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "sync", "Failed to write archive", err)
	}
	if err := tmp.Close(); err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "close", "Failed to write archive", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return Manifest{}, services.Wrap(services.ErrPackaging, "archive", "rename", "Failed to write archive", err)
	}
	committed = true
	return manifest, nil
}
