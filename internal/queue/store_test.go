package queue_test

import (
	"errors"
	"testing"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
)

func TestStoreAppliesReleaseEffects(t *testing.T) {
	reg := blob.NewRegistry()
	store := queue.NewStore(1, format.WebP, reg, logging.NewNop())

	item := newItem("a")
	item.Preview = reg.Acquire("a", blob.KindPreview, "image/png", []byte("preview"))
	if err := store.Dispatch(queue.AddItems{Items: []queue.Item{item}}); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	if err := store.Dispatch(queue.SetStatus{ID: "a", Status: queue.StatusProcessing}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	out := reg.Acquire("a", blob.KindOutput, "image/webp", []byte("out"))
	converted := &queue.ConvertedFile{File: blob.File{Name: "a.webp", Format: format.WebP, Data: []byte("out")}, Handle: out}
	if err := store.Dispatch(queue.SetStatus{ID: "a", Status: queue.StatusDone, Converted: converted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reg.Live() != 2 {
		t.Fatalf("expected preview and output live, got %d", reg.Live())
	}

	got, ok := store.Item("a")
	if !ok || got.StartedAt.IsZero() || got.FinishedAt.IsZero() {
		t.Fatalf("store should stamp timestamps, got %+v", got)
	}

	if err := store.Dispatch(queue.RemoveItem{ID: "a"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reg.Live() != 0 {
		t.Fatalf("expected every handle released, %d live", reg.Live())
	}
	released, _ := store.Stats()
	if released != 2 {
		t.Fatalf("expected 2 releases, got %d", released)
	}
}

func TestStoreRejectsUnknownAction(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	if err := store.Dispatch(bogusAction{}); !errors.Is(err, queue.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	_, rejected := store.Stats()
	if rejected != 1 {
		t.Fatalf("expected 1 rejection, got %d", rejected)
	}
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	if err := store.Dispatch(queue.AddItems{Items: []queue.Item{newItem("a")}}); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	snap := store.Snapshot()
	snap.Items[0].Status = queue.StatusDone
	if got, _ := store.Item("a"); got.Status != queue.StatusIdle {
		t.Fatalf("snapshot mutation leaked into store: %s", got.Status)
	}
}

func TestStoreSubscribeReceivesCommittedEvents(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	events, cancel := store.Subscribe(4)
	defer cancel()

	if err := store.Dispatch(queue.AddItems{Items: []queue.Item{newItem("a")}}); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	_ = store.Dispatch(queue.RemoveItem{ID: "missing"})

	ev := <-events
	if ev.Action != "add_items" || len(ev.State.Items) != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	select {
	case extra := <-events:
		t.Fatalf("rejected action must not publish, got %+v", extra)
	default:
	}

	cancel()
	if _, ok := <-events; ok {
		t.Fatal("expected channel closed after cancel")
	}
	cancel()
}

func TestStoreSubscriberDoesNotBlockDispatch(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	_, cancel := store.Subscribe(1)
	defer cancel()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Dispatch(queue.AddItems{Items: []queue.Item{newItem(id)}}); err != nil {
			t.Fatalf("AddItems %s: %v", id, err)
		}
	}
	if n := len(store.Snapshot().Items); n != 3 {
		t.Fatalf("expected 3 items, got %d", n)
	}
}
