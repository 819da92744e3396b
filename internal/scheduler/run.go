package scheduler

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/services"
	"pixelbatch/internal/stage"
)

// ErrAlreadyRunning is returned by a second Start.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Start marks the batch active and admits as many items as the budget
// allows. Conversions run under ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.store.Dispatch(queue.SetRunState{Run: queue.RunActive}); err != nil {
		return err
	}
	admitted := s.Pump()
	s.logger.Info("scheduler started",
		logging.Int("admitted", admitted),
		logging.Int("budget", s.store.Snapshot().ConcurrencyBudget),
		logging.String(logging.FieldEventType, "scheduler_started"),
	)
	return nil
}

// Stop cancels in-flight conversions and waits for their completions to be
// dispatched.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.mu.Lock()
	s.ctx, s.cancel = nil, nil
	s.signalLocked()
	s.mu.Unlock()
}

// Pump admits idle items in insertion order while the batch is active and
// the budget has room. It returns how many items were admitted.
func (s *Scheduler) Pump() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.signalLocked()
	if s.ctx == nil || s.ctx.Err() != nil {
		return 0
	}

	admitted := 0
	for {
		st := s.store.Snapshot()
		if st.Run != queue.RunActive || !st.CanStart() {
			return admitted
		}
		item, ok := st.NextIdle(s.isInFlightLocked)
		if !ok {
			return admitted
		}
		target := st.OutputFormat
		err := s.store.Dispatch(queue.SetStatus{ID: item.ID, Status: queue.StatusProcessing, Target: target})
		if errors.Is(err, queue.ErrItemNotFound) {
			continue
		}
		if err != nil {
			logging.WarnWithContext(s.logger, "admission rejected", "admission_rejected",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "item stays idle until the next pump"),
			)
			return admitted
		}
		s.inFlight[item.ID] = struct{}{}
		s.wg.Add(1)
		go s.run(s.ctx, item, target)
		admitted++
	}
}

func (s *Scheduler) run(ctx context.Context, item queue.Item, target format.Format) {
	defer s.wg.Done()
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	sampler := logging.NewProgressSampler(s.opts.ProgressBucket)
	progress := func(percent int) {
		err := s.store.Dispatch(queue.SetProgress{ID: item.ID, Progress: percent})
		if err != nil && !errors.Is(err, queue.ErrItemNotFound) {
			logger.Debug("progress rejected", logging.Int(logging.FieldProgressPercent, percent), logging.Error(err))
			return
		}
		label := string(stage.ForProgress(percent))
		if sampler.ShouldLog(percent, label) {
			logger.Info("conversion progress",
				logging.Int(logging.FieldProgressPercent, percent),
				logging.String(logging.FieldStage, label),
				logging.String(logging.FieldEventType, "conversion_progress"),
			)
		}
	}

	logger.Info("conversion admitted",
		logging.String("source", item.Source.Name),
		logging.String("target", target.String()),
		logging.String(logging.FieldEventType, "conversion_admitted"),
	)
	res, err := s.conv.Convert(ctx, pipeline.Job{ItemID: item.ID, Source: item.Source, Target: target}, progress)
	s.finish(logger, item.ID, res, err)
}
