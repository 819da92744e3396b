package queue_test

import (
	"errors"
	"testing"
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/stage"
)

func mustReduce(t *testing.T, state queue.State, action queue.Action) (queue.State, queue.Effects) {
	t.Helper()
	next, fx, err := queue.Reduce(state, action)
	if err != nil {
		t.Fatalf("Reduce(%s) returned error: %v", action.ActionName(), err)
	}
	return next, fx
}

func newItem(id string) queue.Item {
	return queue.Item{
		ID:      id,
		Source:  blob.New(id+".png", "image/png", []byte("\x89PNG\r\n\x1a\n"+id)),
		Preview: blob.Handle{ID: "preview-" + id, Owner: id, Kind: blob.KindPreview},
	}
}

func output(id string) *queue.ConvertedFile {
	return &queue.ConvertedFile{
		File:   blob.File{Name: id + ".webp", Format: format.WebP, Data: []byte("out")},
		Handle: blob.Handle{ID: "output-" + id, Owner: id, Kind: blob.KindOutput},
	}
}

func seeded(t *testing.T, budget int, ids ...string) queue.State {
	t.Helper()
	items := make([]queue.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, newItem(id))
	}
	state, _ := mustReduce(t, queue.NewState(budget, format.WebP), queue.AddItems{Items: items})
	return state
}

func TestAddItemsStartsIdle(t *testing.T) {
	state := seeded(t, 1, "a", "b")
	if len(state.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(state.Items))
	}
	for _, item := range state.Items {
		if item.Status != queue.StatusIdle || item.Progress != 0 {
			t.Fatalf("unexpected new item %+v", item)
		}
	}
	if state.ConversionStatus != queue.ConversionIdle {
		t.Fatalf("expected idle aggregate before start, got %s", state.ConversionStatus)
	}

	if _, _, err := queue.Reduce(state, queue.AddItems{Items: []queue.Item{newItem("a")}}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected duplicate id rejection, got %v", err)
	}
	bad := newItem("c")
	bad.Status = queue.StatusDone
	if _, _, err := queue.Reduce(state, queue.AddItems{Items: []queue.Item{bad}}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected done item rejection, got %v", err)
	}
}

func TestAddItemsAcceptsPreviewFailure(t *testing.T) {
	broken := newItem("broken")
	broken.Status = queue.StatusError
	broken.Error = "Failed to generate preview"
	state, _ := mustReduce(t, queue.NewState(1, format.WebP), queue.AddItems{Items: []queue.Item{broken}})
	if state.ConversionStatus != queue.ConversionError {
		t.Fatalf("expected error aggregate, got %s", state.ConversionStatus)
	}

	broken.Error = ""
	broken.ID = "other"
	if _, _, err := queue.Reduce(state, queue.AddItems{Items: []queue.Item{broken}}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected rejection of message-less error item, got %v", err)
	}
}

func TestAdmissionRespectsBudget(t *testing.T) {
	state := seeded(t, 1, "a", "b")
	state, _ = mustReduce(t, state, queue.SetRunState{Run: queue.RunActive})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing, Target: format.AVIF})

	if state.ActiveConversions != 1 || state.CanStart() {
		t.Fatalf("expected budget exhausted, active=%d", state.ActiveConversions)
	}
	item, _ := state.Find("a")
	if item.TargetFormat != format.AVIF || item.Stage != stage.Initializing {
		t.Fatalf("unexpected admitted item %+v", item)
	}
	if state.ConversionStatus != queue.ConversionProcessing {
		t.Fatalf("expected processing aggregate, got %s", state.ConversionStatus)
	}

	_, _, err := queue.Reduce(state, queue.SetStatus{ID: "b", Status: queue.StatusProcessing})
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected budget rejection, got %v", err)
	}
}

func TestAdmissionSnapshotsOutputFormat(t *testing.T) {
	state := seeded(t, 2, "a")
	state, _ = mustReduce(t, state, queue.SetOutputFormat{Format: format.GIF})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	state, _ = mustReduce(t, state, queue.SetOutputFormat{Format: format.JPEG})

	item, _ := state.Find("a")
	if item.TargetFormat != format.GIF {
		t.Fatalf("target should be snapshotted at admission, got %v", item.TargetFormat)
	}
	if _, _, err := queue.Reduce(state, queue.SetOutputFormat{Format: format.SVG}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected svg output rejection, got %v", err)
	}
}

func TestTerminalTransitionsDecrementActive(t *testing.T) {
	state := seeded(t, 2, "a", "b")
	state, _ = mustReduce(t, state, queue.SetRunState{Run: queue.RunActive})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "b", Status: queue.StatusProcessing})

	if _, _, err := queue.Reduce(state, queue.SetStatus{ID: "a", Status: queue.StatusDone}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("done without output must be rejected, got %v", err)
	}
	if _, _, err := queue.Reduce(state, queue.SetStatus{ID: "b", Status: queue.StatusError}); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("error without message must be rejected, got %v", err)
	}

	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusDone, Converted: output("a"), At: finished})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "b", Status: queue.StatusError, Error: "boom"})

	if state.ActiveConversions != 0 {
		t.Fatalf("expected active 0, got %d", state.ActiveConversions)
	}
	a, _ := state.Find("a")
	if a.Progress != 100 || a.Converted == nil || !a.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected done item %+v", a)
	}
	if state.ConversionStatus != queue.ConversionError {
		t.Fatalf("expected error aggregate, got %s", state.ConversionStatus)
	}
	if state.Run != queue.RunStopped {
		t.Fatalf("settled batch should stop, got %s", state.Run)
	}
}

func TestProgressValidation(t *testing.T) {
	state := seeded(t, 1, "a", "b")
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})

	state, _ = mustReduce(t, state, queue.SetProgress{ID: "a", Progress: 50})
	item, _ := state.Find("a")
	if item.Progress != 50 || item.Stage != stage.Compressing {
		t.Fatalf("unexpected progress %+v", item)
	}

	tests := []struct {
		name   string
		action queue.SetProgress
		want   error
	}{
		{"above range", queue.SetProgress{ID: "a", Progress: 101}, queue.ErrInvalidTransition},
		{"below range", queue.SetProgress{ID: "a", Progress: -1}, queue.ErrInvalidTransition},
		{"backwards", queue.SetProgress{ID: "a", Progress: 10}, queue.ErrInvalidTransition},
		{"idle item", queue.SetProgress{ID: "b", Progress: 10}, queue.ErrInvalidTransition},
		{"missing item", queue.SetProgress{ID: "zzz", Progress: 10}, queue.ErrItemNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _, err := queue.Reduce(state, tt.action)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if got, _ := next.Find("a"); got.Progress != 50 {
				t.Fatalf("state changed on rejection: %+v", got)
			}
		})
	}
}

func TestRemoveProcessingItemOrphansItsCompletion(t *testing.T) {
	state := seeded(t, 1, "a", "b")
	state, _ = mustReduce(t, state, queue.SetRunState{Run: queue.RunActive})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})

	state, fx := mustReduce(t, state, queue.RemoveItem{ID: "a"})
	if len(fx.Release) != 1 || fx.Release[0].ID != "preview-a" {
		t.Fatalf("expected preview release, got %+v", fx.Release)
	}
	if state.ActiveConversions != 1 || state.Orphans() != 1 || state.CanStart() {
		t.Fatalf("active must survive removal: active=%d orphans=%d", state.ActiveConversions, state.Orphans())
	}

	// Late progress is absorbed.
	state, _ = mustReduce(t, state, queue.SetProgress{ID: "a", Progress: 90})

	state, fx = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusDone, Converted: output("a")})
	if state.ActiveConversions != 0 || state.Orphans() != 0 {
		t.Fatalf("orphan completion must decrement: active=%d orphans=%d", state.ActiveConversions, state.Orphans())
	}
	if len(fx.Release) != 1 || fx.Release[0].ID != "output-a" {
		t.Fatalf("late output must be released, got %+v", fx.Release)
	}
	if len(state.Items) != 1 || state.Items[0].ID != "b" {
		t.Fatalf("removed item reappeared: %+v", state.Items)
	}
	if !state.CanStart() {
		t.Fatal("budget should be free again")
	}

	if _, _, err := queue.Reduce(state, queue.SetStatus{ID: "a", Status: queue.StatusError, Error: "late"}); !errors.Is(err, queue.ErrItemNotFound) {
		t.Fatalf("second completion for orphan should be not found, got %v", err)
	}
}

func TestClearAllReleasesEverything(t *testing.T) {
	state := seeded(t, 3, "a", "b", "c")
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusDone, Converted: output("a")})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "b", Status: queue.StatusProcessing})

	state, fx := mustReduce(t, state, queue.ClearAll{})
	if len(state.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(state.Items))
	}
	if len(fx.Release) != 4 {
		t.Fatalf("expected 3 previews and 1 output released, got %d", len(fx.Release))
	}
	if state.ActiveConversions != 1 || state.ConversionStatus != queue.ConversionProcessing {
		t.Fatalf("in-flight conversion must still count: %d %s", state.ActiveConversions, state.ConversionStatus)
	}
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "b", Status: queue.StatusError, Error: "Conversion canceled"})
	if state.ActiveConversions != 0 || state.ConversionStatus != queue.ConversionIdle {
		t.Fatalf("expected idle after orphan completes: %d %s", state.ActiveConversions, state.ConversionStatus)
	}
}

func TestRerunReleasesPreviousOutput(t *testing.T) {
	state := seeded(t, 1, "a")
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	state, _ = mustReduce(t, state, queue.SetProgress{ID: "a", Progress: 90})
	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusDone, Converted: output("a")})

	state, fx := mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusIdle})
	if len(fx.Release) != 1 || fx.Release[0].ID != "output-a" {
		t.Fatalf("expected output release, got %+v", fx.Release)
	}
	item, _ := state.Find("a")
	if item.Status != queue.StatusIdle || item.Converted != nil || item.Progress != 0 {
		t.Fatalf("unexpected reset item %+v", item)
	}

	state, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	item, _ = state.Find("a")
	if item.Progress != 0 {
		t.Fatalf("progress must reset on re-entry, got %d", item.Progress)
	}
}

func TestInvalidStatusTransitions(t *testing.T) {
	state := seeded(t, 1, "a")
	tests := []queue.Status{queue.StatusDone, queue.StatusError, queue.StatusIdle}
	for _, to := range tests {
		if _, _, err := queue.Reduce(state, queue.SetStatus{ID: "a", Status: to, Error: "x", Converted: output("a")}); !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("idle -> %s should be rejected, got %v", to, err)
		}
	}
}

type bogusAction struct{}

func (bogusAction) ActionName() string { return "bogus" }

func TestUnknownActionLeavesStateUntouched(t *testing.T) {
	state := seeded(t, 1, "a")
	next, fx, err := queue.Reduce(state, bogusAction{})
	if !errors.Is(err, queue.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
	if len(next.Items) != 1 || len(fx.Release) != 0 {
		t.Fatal("state or effects changed on unknown action")
	}
	if _, _, err := queue.Reduce(state, nil); !errors.Is(err, queue.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction for nil, got %v", err)
	}
}

func TestAggregateDerivation(t *testing.T) {
	empty := queue.NewState(2, format.WebP)
	if empty.ConversionStatus != queue.ConversionIdle {
		t.Fatalf("empty queue should be idle, got %s", empty.ConversionStatus)
	}

	state := seeded(t, 2, "a", "b")
	state, _ = mustReduce(t, state, queue.SetRunState{Run: queue.RunPaused})
	if state.ConversionStatus != queue.ConversionPaused {
		t.Fatalf("expected paused, got %s", state.ConversionStatus)
	}
	state, _ = mustReduce(t, state, queue.SetRunState{Run: queue.RunActive})
	if state.ConversionStatus != queue.ConversionProcessing {
		t.Fatalf("expected processing, got %s", state.ConversionStatus)
	}
	for _, id := range []string{"a", "b"} {
		state, _ = mustReduce(t, state, queue.SetStatus{ID: id, Status: queue.StatusProcessing})
		state, _ = mustReduce(t, state, queue.SetStatus{ID: id, Status: queue.StatusDone, Converted: output(id)})
	}
	if state.ConversionStatus != queue.ConversionComplete {
		t.Fatalf("expected complete, got %s", state.ConversionStatus)
	}
	if !state.AllDoneIn(format.WebP) || state.AllDoneIn(format.PNG) {
		t.Fatal("AllDoneIn mismatch")
	}
	if len(state.Done()) != 2 {
		t.Fatalf("expected 2 done items, got %d", len(state.Done()))
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	state := seeded(t, 1, "a")
	_, _ = mustReduce(t, state, queue.SetStatus{ID: "a", Status: queue.StatusProcessing})
	if state.Items[0].Status != queue.StatusIdle || state.ActiveConversions != 0 {
		t.Fatal("input state mutated")
	}
}

func TestReductionPercent(t *testing.T) {
	item := newItem("a")
	item.Source.Data = make([]byte, 1000)
	item.Converted = &queue.ConvertedFile{File: blob.File{Data: make([]byte, 250)}}
	if got := item.ReductionPercent(); got != 75 {
		t.Fatalf("ReductionPercent = %d, want 75", got)
	}
	item.Converted.File.Data = make([]byte, 2000)
	if got := item.ReductionPercent(); got != 0 {
		t.Fatalf("growth should report 0, got %d", got)
	}
}
