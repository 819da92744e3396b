package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"pixelbatch/internal/format"
	"pixelbatch/internal/raster"
	"pixelbatch/internal/stage"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// need bytes available to unprivileged users.
func CheckFreeSpace(name, path string, need int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	avail := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free, %s needed", humanize.IBytes(avail), humanize.IBytes(uint64(max(need, 0))))
	if need > 0 && avail < uint64(need) {
		return Result{Name: name, Detail: detail}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckEncoder verifies that target can be encoded in this process.
func CheckEncoder(ctx context.Context, target format.Format) Result {
	return FromHealth(raster.Encoder{Format: target}.HealthCheck(ctx))
}

// FromHealth converts a primitive health record to a Result.
func FromHealth(h stage.Health) Result {
	detail := h.Detail
	if h.Ready && detail == "" {
		detail = "Ready"
	}
	return Result{Name: h.Name, Passed: h.Ready, Detail: detail}
}

// CheckCodecs reports every output encoder and the vector rasterizer.
func CheckCodecs(ctx context.Context) []Result {
	health := stage.CheckAll(ctx, raster.Checkers()...)
	out := make([]Result, 0, len(health))
	for _, h := range health {
		out = append(out, FromHealth(h))
	}
	return out
}
