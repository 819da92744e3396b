package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"pixelbatch/internal/logging"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/queue"
)

// Store is the slice of the queue store the scheduler drives.
type Store interface {
	Dispatch(queue.Action) error
	Snapshot() queue.State
	Item(id string) (queue.Item, bool)
}

// Converter runs one conversion.
type Converter interface {
	Convert(ctx context.Context, job pipeline.Job, progress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Options tunes a Scheduler.
type Options struct {
	// ProgressBucket is the percent step between progress log lines.
	ProgressBucket int
}

// Scheduler owns admission into the pipeline.
type Scheduler struct {
	store    Store
	conv     Converter
	releaser queue.Releaser
	opts     Options
	logger   *slog.Logger
	ledger   *RetryLedger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight map[string]struct{}
	changed  chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Scheduler. releaser frees outputs whose terminal status
// the store refused; it may be nil.
func New(store Store, conv Converter, releaser queue.Releaser, opts Options, logger *slog.Logger) *Scheduler {
	if opts.ProgressBucket <= 0 {
		opts.ProgressBucket = 10
	}
	return &Scheduler{
		store:    store,
		conv:     conv,
		releaser: releaser,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		ledger:   NewRetryLedger(),
		inFlight: make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
}

// Ledger exposes the retry ledger.
func (s *Scheduler) Ledger() *RetryLedger { return s.ledger }

// InFlight returns how many conversions this scheduler is running.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil && s.ctx.Err() == nil
}

func (s *Scheduler) isInFlightLocked(id string) bool {
	_, ok := s.inFlight[id]
	return ok
}

// signalLocked wakes every Wait caller.
func (s *Scheduler) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
