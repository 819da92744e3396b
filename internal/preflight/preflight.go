package preflight

import (
	"context"

	"pixelbatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the checks for cfg. needBytes is the expected archive size;
// zero skips the free-space check.
func RunAll(ctx context.Context, cfg *config.Config, needBytes int64) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir)}

	if needBytes > 0 {
		results = append(results, CheckFreeSpace("Output free space", cfg.Paths.OutputDir, needBytes))
	}

	results = append(results, CheckEncoder(ctx, cfg.Output()))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
