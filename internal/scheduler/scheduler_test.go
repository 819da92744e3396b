package scheduler_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/raster"
	"pixelbatch/internal/scheduler"
	"pixelbatch/internal/services"
	"pixelbatch/internal/testsupport"
)

type fakeConverter struct {
	gate     chan struct{}
	acquirer pipeline.Acquirer
	fail     func(id string, call int) error

	mu      sync.Mutex
	calls   map[string]int
	running int
	peak    int
}

func newFakeConverter(gate chan struct{}) *fakeConverter {
	return &fakeConverter{gate: gate, calls: make(map[string]int)}
}

func (f *fakeConverter) Convert(ctx context.Context, job pipeline.Job, progress pipeline.ProgressFunc) (pipeline.Result, error) {
	f.mu.Lock()
	f.calls[job.ItemID]++
	call := f.calls[job.ItemID]
	f.running++
	f.peak = max(f.peak, f.running)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	progress(0)
	progress(50)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return pipeline.Result{}, services.Wrap(services.ErrCanceled, "pipeline", "convert", "Conversion canceled", ctx.Err())
		}
	}
	if f.fail != nil {
		if err := f.fail(job.ItemID, call); err != nil {
			return pipeline.Result{}, err
		}
	}
	out := job.Source.WithFormat(job.Target, []byte("converted"))
	var h blob.Handle
	if f.acquirer != nil {
		h = f.acquirer.Acquire(job.ItemID, blob.KindOutput, out.Type(), out.Data)
	}
	progress(100)
	return pipeline.Result{File: out, Handle: h}, nil
}

func (f *fakeConverter) snapshot() (running, peak int, calls map[string]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		copied[k] = v
	}
	return f.running, f.peak, copied
}

func seed(t *testing.T, store *queue.Store, ids ...string) {
	t.Helper()
	items := make([]queue.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, queue.Item{ID: id, Source: blob.New(id+".png", "image/png", []byte("png-bytes"))})
	}
	if err := store.Dispatch(queue.AddItems{Items: items}); err != nil {
		t.Fatalf("add items: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitSettled(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestBudgetBoundsInFlightConversions(t *testing.T) {
	store := queue.NewStore(2, format.WebP, nil, logging.NewNop())
	seed(t, store, "a", "b", "c", "d", "e")
	gate := make(chan struct{})
	conv := newFakeConverter(gate)
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, "two running", func() bool { r, _, _ := conv.snapshot(); return r == 2 })
	st := store.Snapshot()
	if st.ActiveConversions != 2 || st.ConversionStatus != queue.ConversionProcessing {
		t.Fatalf("unexpected state active=%d status=%s", st.ActiveConversions, st.ConversionStatus)
	}
	if c := st.Counts(); c.Processing != 2 || c.Idle != 3 {
		t.Fatalf("unexpected counts %+v", c)
	}
	close(gate)
	waitSettled(t, s)

	_, peak, calls := conv.snapshot()
	if peak > 2 {
		t.Fatalf("budget exceeded: peak %d", peak)
	}
	if len(calls) != 5 {
		t.Fatalf("expected 5 conversions, got %v", calls)
	}
	st = store.Snapshot()
	if st.ConversionStatus != queue.ConversionComplete || st.ActiveConversions != 0 || st.Run != queue.RunStopped {
		t.Fatalf("unexpected final state %s active=%d run=%s", st.ConversionStatus, st.ActiveConversions, st.Run)
	}
	for _, item := range st.Items {
		if item.Status != queue.StatusDone || item.Progress != 100 || item.TargetFormat != format.WebP {
			t.Fatalf("unexpected item %+v", item)
		}
		if item.Converted == nil || item.Converted.File.Name != item.ID+".webp" {
			t.Fatalf("unexpected output for %s", item.ID)
		}
	}
}

func TestConcurrentPumpsAdmitEachItemOnce(t *testing.T) {
	store := queue.NewStore(3, format.JPEG, nil, logging.NewNop())
	seed(t, store, "a", "b", "c", "d")
	gate := make(chan struct{})
	conv := newFakeConverter(gate)
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Pump()
		}()
	}
	wg.Wait()
	waitFor(t, "three running", func() bool { r, _, _ := conv.snapshot(); return r == 3 })
	if _, _, calls := conv.snapshot(); len(calls) != 3 {
		t.Fatalf("expected 3 admitted items, got %v", calls)
	}
	if s.InFlight() != 3 {
		t.Fatalf("in-flight = %d", s.InFlight())
	}
	close(gate)
	waitSettled(t, s)
	_, _, calls := conv.snapshot()
	for id, n := range calls {
		if n != 1 {
			t.Fatalf("item %s converted %d times", id, n)
		}
	}
}

func TestAdmissionFollowsInsertionOrder(t *testing.T) {
	store := queue.NewStore(1, format.PNG, nil, logging.NewNop())
	seed(t, store, "first", "second", "third")
	gate := make(chan struct{})
	conv := newFakeConverter(gate)
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	for _, want := range []string{"first", "second", "third"} {
		waitFor(t, want+" admitted", func() bool {
			item, _ := store.Item(want)
			return item.Status == queue.StatusProcessing
		})
		for _, other := range store.Snapshot().Items {
			if other.ID != want && other.Status == queue.StatusProcessing {
				t.Fatalf("%s processing alongside %s", other.ID, want)
			}
		}
		gate <- struct{}{}
	}
	waitSettled(t, s)
}

func TestPauseHoldsAdmissionsAndResumeRestarts(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	seed(t, store, "a", "b", "c")
	gate := make(chan struct{})
	conv := newFakeConverter(gate)
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, "first running", func() bool { r, _, _ := conv.snapshot(); return r == 1 })
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	gate <- struct{}{}
	waitSettled(t, s)

	st := store.Snapshot()
	if c := st.Counts(); c.Done != 1 || c.Idle != 2 {
		t.Fatalf("paused batch should hold idle items, counts %+v", c)
	}
	if st.ConversionStatus != queue.ConversionPaused {
		t.Fatalf("expected paused status, got %s", st.ConversionStatus)
	}

	close(gate)
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitSettled(t, s)
	if st := store.Snapshot(); st.ConversionStatus != queue.ConversionComplete {
		t.Fatalf("expected complete, got %s", st.ConversionStatus)
	}
}

func TestFailureIsTrackedAndRetrySucceeds(t *testing.T) {
	store := queue.NewStore(1, format.GIF, nil, logging.NewNop())
	seed(t, store, "a", "b")
	conv := newFakeConverter(nil)
	conv.fail = func(id string, call int) error {
		if id == "a" && call == 1 {
			return services.Wrap(services.ErrReEncode, "pipeline", "reencode", "Format conversion failed: boom", errors.New("boom"))
		}
		return nil
	}
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	waitSettled(t, s)

	st := store.Snapshot()
	if st.ConversionStatus != queue.ConversionError {
		t.Fatalf("expected error status, got %s", st.ConversionStatus)
	}
	failed, _ := store.Item("a")
	if failed.Status != queue.StatusError || failed.Error != "Format conversion failed: boom" {
		t.Fatalf("unexpected failed item %+v", failed)
	}
	if n, ok := s.Ledger().Attempts("a"); !ok || n != 0 {
		t.Fatalf("expected ledger entry at 0, got %d %v", n, ok)
	}

	if err := s.Retry("a"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitSettled(t, s)
	retried, _ := store.Item("a")
	if retried.Status != queue.StatusDone || retried.Error != "" {
		t.Fatalf("retry should succeed, got %+v", retried)
	}
	if _, ok := s.Ledger().Attempts("a"); ok {
		t.Fatal("success should clear the ledger entry")
	}
	if st := store.Snapshot(); st.ConversionStatus != queue.ConversionComplete {
		t.Fatalf("expected complete after retry, got %s", st.ConversionStatus)
	}
}

func TestRetryRejectsUnknownAndActiveItems(t *testing.T) {
	store := queue.NewStore(1, format.PNG, nil, logging.NewNop())
	seed(t, store, "a")
	s := scheduler.New(store, newFakeConverter(nil), nil, scheduler.Options{}, logging.NewNop())
	if err := s.Retry("missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Retry("a"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for idle item, got %v", err)
	}
}

func TestRetryBeforeStartWaitsForExplicitStart(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	broken := queue.Item{
		ID:     "a",
		Source: blob.New("a.png", "image/png", []byte("png-bytes")),
		Status: queue.StatusError,
		Error:  "Failed to generate preview",
	}
	if err := store.Dispatch(queue.AddItems{Items: []queue.Item{broken}}); err != nil {
		t.Fatalf("add items: %v", err)
	}
	conv := newFakeConverter(nil)
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())

	if err := s.Retry("a"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitSettled(t, s)

	st := store.Snapshot()
	if st.Run != queue.RunStopped || st.ConversionStatus != queue.ConversionIdle || st.ActiveConversions != 0 {
		t.Fatalf("unstarted retry must leave the batch idle: run=%s status=%s active=%d", st.Run, st.ConversionStatus, st.ActiveConversions)
	}
	if item, _ := store.Item("a"); item.Status != queue.StatusIdle {
		t.Fatalf("expected idle item, got %s", item.Status)
	}
	if n, _ := s.Ledger().Attempts("a"); n != 1 {
		t.Fatalf("retry should be counted, got %d", n)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	waitSettled(t, s)
	if item, _ := store.Item("a"); item.Status != queue.StatusDone {
		t.Fatalf("expected done after start, got %+v", item)
	}
}

// hangingCanvas never finishes decoding until release is closed.
type hangingCanvas struct {
	raster.Canvas
	release chan struct{}
}

func (c hangingCanvas) DecodeBitmap(_ context.Context, _ blob.File) (image.Image, error) {
	<-c.release
	return nil, errors.New("released")
}

func TestTimedOutConversionFailsAndFreesItsSlot(t *testing.T) {
	reg := blob.NewRegistry()
	store := queue.NewStore(1, format.WebP, reg, logging.NewNop())
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	prims := raster.Primitives()
	prims.Canvas = hangingCanvas{release: release}
	opts := pipeline.DefaultOptions()
	opts.Timeout = 100 * time.Millisecond
	conv := pipeline.New(prims, reg, opts, logging.NewNop())

	src := testsupport.PNG(t, 8, 8)
	items := []queue.Item{
		{ID: "h", Source: blob.New("h.png", "image/png", src)},
		{ID: "next", Source: blob.New("next.png", "image/png", src)},
	}
	if err := store.Dispatch(queue.AddItems{Items: items}); err != nil {
		t.Fatalf("add items: %v", err)
	}
	s := scheduler.New(store, conv, reg, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, "both items failed", func() bool {
		st := store.Snapshot()
		return st.Counts().Error == 2 && st.ActiveConversions == 0
	})
	for _, id := range []string{"h", "next"} {
		item, _ := store.Item(id)
		if item.Error != "Conversion timeout after 100ms" || item.Converted != nil {
			t.Fatalf("unexpected item %s: %+v", id, item)
		}
	}
	if st := store.Snapshot(); st.ConversionStatus != queue.ConversionError {
		t.Fatalf("expected error status, got %s", st.ConversionStatus)
	}
	if reg.Live() != 0 {
		t.Fatalf("timed out conversions must not hold outputs, got %d", reg.Live())
	}
}

func TestRemoveWhileProcessingReleasesLateOutput(t *testing.T) {
	reg := blob.NewRegistry()
	store := queue.NewStore(1, format.WebP, reg, logging.NewNop())
	seed(t, store, "a", "b")
	gate := make(chan struct{})
	conv := newFakeConverter(gate)
	conv.acquirer = reg
	s := scheduler.New(store, conv, reg, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	waitFor(t, "a running", func() bool { r, _, _ := conv.snapshot(); return r == 1 })
	if err := s.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if st := store.Snapshot(); st.ActiveConversions != 1 || !st.IsOrphan("a") {
		t.Fatalf("removed item must keep its slot until completion: active=%d", st.ActiveConversions)
	}
	close(gate)
	waitSettled(t, s)

	st := store.Snapshot()
	if st.ActiveConversions != 0 || st.Orphans() != 0 {
		t.Fatalf("orphan not absorbed: active=%d orphans=%d", st.ActiveConversions, st.Orphans())
	}
	if len(st.Items) != 1 || st.Items[0].Status != queue.StatusDone {
		t.Fatalf("unexpected items %+v", st.Items)
	}
	if reg.Live() != 1 {
		t.Fatalf("only b's output should be live, got %d", reg.Live())
	}
}

func TestStopCancelsInFlightConversions(t *testing.T) {
	store := queue.NewStore(2, format.WebP, nil, logging.NewNop())
	seed(t, store, "a", "b")
	conv := newFakeConverter(make(chan struct{}))
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, scheduler.ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}
	waitFor(t, "both running", func() bool { r, _, _ := conv.snapshot(); return r == 2 })
	s.Stop()

	for _, item := range store.Snapshot().Items {
		if item.Status != queue.StatusError || item.Error != "Conversion canceled" {
			t.Fatalf("unexpected item after stop %+v", item)
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	store := queue.NewStore(1, format.WebP, nil, logging.NewNop())
	seed(t, store, "a")
	conv := newFakeConverter(make(chan struct{}))
	s := scheduler.New(store, conv, nil, scheduler.Options{}, logging.NewNop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryLedger(t *testing.T) {
	l := scheduler.NewRetryLedger()
	if n := l.Track("x"); n != 0 {
		t.Fatalf("track = %d", n)
	}
	if n := l.Increment("x"); n != 1 {
		t.Fatalf("increment = %d", n)
	}
	if n := l.Track("x"); n != 1 {
		t.Fatalf("track after retry = %d", n)
	}
	l.Clear("x")
	if _, ok := l.Attempts("x"); ok || l.Len() != 0 {
		t.Fatal("clear should drop the entry")
	}
}
