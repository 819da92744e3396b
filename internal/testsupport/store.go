package testsupport

import (
	"testing"

	"github.com/google/uuid"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/config"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
)

// MustOpenStore builds a queue.Store backed by a fresh blob registry.
func MustOpenStore(t testing.TB, cfg *config.Config) (*queue.Store, *blob.Registry) {
	t.Helper()

	output, ok := format.ParseOutput(cfg.Conversion.OutputFormat)
	if !ok {
		t.Fatalf("config output format %q is not an output", cfg.Conversion.OutputFormat)
	}
	reg := blob.NewRegistry()
	store := queue.NewStore(cfg.Budget(), output, reg, logging.NewNop())
	return store, reg
}

// AddFile queues data under name and returns the new item id.
func AddFile(t testing.TB, store *queue.Store, name string, data []byte) string {
	t.Helper()

	id := uuid.NewString()
	item := queue.Item{ID: id, Source: blob.New(name, "", data)}
	if err := store.Dispatch(queue.AddItems{Items: []queue.Item{item}}); err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return id
}
