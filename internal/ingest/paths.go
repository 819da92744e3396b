package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"pixelbatch/internal/format"
)

// IngestPaths reads files from disk and ingests them. Directories contribute
// their regular files whose extension names a known format, sorted by name.
func (in *Ingestor) IngestPaths(ctx context.Context, paths []string) (Report, error) {
	var (
		inputs   []Input
		rejected []Rejection
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			rejected = append(rejected, Rejection{Name: path, Reason: err.Error()})
			continue
		}
		files := []string{path}
		if info.IsDir() {
			files, err = listImages(path)
			if err != nil {
				rejected = append(rejected, Rejection{Name: path, Reason: err.Error()})
				continue
			}
		}
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				rejected = append(rejected, Rejection{Name: file, Reason: err.Error()})
				continue
			}
			inputs = append(inputs, Input{Name: filepath.Base(file), Data: data})
		}
	}
	report, err := in.Ingest(ctx, inputs)
	report.Rejected = append(rejected, report.Rejected...)
	return report, err
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			continue
		}
		if _, ok := format.Parse(filepath.Ext(entry.Name())); !ok {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}
