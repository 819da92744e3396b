package scheduler

import (
	"context"

	"pixelbatch/internal/queue"
)

// Wait blocks until nothing is in flight and no idle item is admissible.
// A paused or stopped batch with idle items counts as settled.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.Pump()
	for {
		s.mu.Lock()
		quiet := len(s.inFlight) == 0 && !s.admissibleLocked()
		changed := s.changed
		s.mu.Unlock()
		if quiet {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) admissibleLocked() bool {
	if s.ctx == nil || s.ctx.Err() != nil {
		return false
	}
	st := s.store.Snapshot()
	if st.Run != queue.RunActive || !st.CanStart() {
		return false
	}
	_, ok := st.NextIdle(s.isInFlightLocked)
	return ok
}
