package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"pixelbatch/internal/queue"
)

// batchProgress renders aggregate item progress from queue events.
type batchProgress struct {
	bar         *progressbar.ProgressBar
	unsubscribe func()
	done        chan struct{}
	once        sync.Once
}

func newBatchProgress(w io.Writer, store *queue.Store) *batchProgress {
	events, unsubscribe := store.Subscribe(64)
	snap := store.Snapshot()
	p := &batchProgress{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
	_ = p.bar.Set(overallPercent(snap))
	go func() {
		defer close(p.done)
		for ev := range events {
			_ = p.bar.Set(overallPercent(ev.State))
		}
	}()
	return p
}

func (p *batchProgress) close() {
	p.once.Do(func() {
		p.unsubscribe()
		<-p.done
		_ = p.bar.Finish()
	})
}

// overallPercent averages item progress; finished items count as complete.
func overallPercent(st queue.State) int {
	if len(st.Items) == 0 {
		return 0
	}
	total := 0
	for _, item := range st.Items {
		switch item.Status {
		case queue.StatusDone, queue.StatusError:
			total += 100
		default:
			total += item.Progress
		}
	}
	return total / len(st.Items)
}
