package scheduler

import (
	"fmt"

	"pixelbatch/internal/logging"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/services"
)

// Pause stops new admissions. Conversions already running continue.
func (s *Scheduler) Pause() error {
	if err := s.store.Dispatch(queue.SetRunState{Run: queue.RunPaused}); err != nil {
		return err
	}
	s.mu.Lock()
	s.signalLocked()
	s.mu.Unlock()
	s.logger.Info("scheduler paused",
		logging.Int("in_flight", s.InFlight()),
		logging.String(logging.FieldEventType, "scheduler_paused"),
	)
	return nil
}

// Resume reactivates the batch and admits immediately.
func (s *Scheduler) Resume() error {
	if err := s.store.Dispatch(queue.SetRunState{Run: queue.RunActive}); err != nil {
		return err
	}
	admitted := s.Pump()
	s.logger.Info("scheduler resumed",
		logging.Int("admitted", admitted),
		logging.String(logging.FieldEventType, "scheduler_resumed"),
	)
	return nil
}

// Retry returns a finished item to idle and counts the attempt. A started,
// unpaused scheduler reactivates the batch; otherwise the item waits idle for
// an explicit start.
func (s *Scheduler) Retry(id string) error {
	item, ok := s.store.Item(id)
	if !ok {
		return services.Wrap(services.ErrNotFound, "scheduler", "retry", fmt.Sprintf("Item %s not found", id), nil)
	}
	if !item.Status.Terminal() {
		return services.Wrap(services.ErrValidation, "scheduler", "retry",
			fmt.Sprintf("Item %s is %s and cannot be retried", id, item.Status), queue.ErrInvalidTransition)
	}
	if err := s.store.Dispatch(queue.SetStatus{ID: id, Status: queue.StatusIdle}); err != nil {
		return err
	}
	attempts := s.ledger.Increment(id)
	if s.running() && s.store.Snapshot().Run != queue.RunPaused {
		if err := s.store.Dispatch(queue.SetRunState{Run: queue.RunActive}); err != nil {
			return err
		}
	}
	s.logger.Info("retry requested",
		logging.String(logging.FieldItemID, id),
		logging.Int("attempt", attempts),
		logging.String(logging.FieldEventType, "retry_requested"),
	)
	s.Pump()
	return nil
}

// Remove deletes an item from the queue. A running conversion keeps going;
// its completion is absorbed by the store.
func (s *Scheduler) Remove(id string) error {
	if err := s.store.Dispatch(queue.RemoveItem{ID: id}); err != nil {
		return err
	}
	s.ledger.Clear(id)
	s.Pump()
	return nil
}

// Clear empties the queue and the retry ledger.
func (s *Scheduler) Clear() error {
	if err := s.store.Dispatch(queue.ClearAll{}); err != nil {
		return err
	}
	s.ledger.Reset()
	s.mu.Lock()
	s.signalLocked()
	s.mu.Unlock()
	return nil
}
