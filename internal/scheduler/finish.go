package scheduler

import (
	"errors"
	"log/slog"

	"pixelbatch/internal/logging"
	"pixelbatch/internal/pipeline"
	"pixelbatch/internal/queue"
	"pixelbatch/internal/services"
)

// finish dispatches the terminal status, leaves the in-flight set, updates
// the ledger and admits the next items.
func (s *Scheduler) finish(logger *slog.Logger, id string, res pipeline.Result, convErr error) {
	action := queue.SetStatus{ID: id}
	if convErr == nil {
		action.Status = queue.StatusDone
		action.Converted = &queue.ConvertedFile{File: res.File, Handle: res.Handle}
		s.ledger.Clear(id)
	} else {
		kind, message := services.Details(convErr)
		action.Status = queue.StatusError
		action.Error = message
		attempts := s.ledger.Track(id)
		logger.Warn("conversion failed",
			logging.String("kind", kind),
			logging.String("message", message),
			logging.Int("retries", attempts),
			logging.Bool("retryable", services.Retryable(convErr)),
			logging.Error(convErr),
			logging.String(logging.FieldEventType, "conversion_failed"),
			logging.String(logging.FieldErrorHint, "retry the item once the cause is addressed"),
		)
	}

	if err := s.store.Dispatch(action); err != nil {
		if res.Handle.Valid() && s.releaser != nil {
			s.releaser.Release(res.Handle)
		}
		if !errors.Is(err, queue.ErrItemNotFound) {
			logging.ErrorWithContext(logger, "terminal status rejected", "terminal_status_rejected",
				logging.String("status", string(action.Status)),
				logging.Error(err),
			)
		}
	}

	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
	s.Pump()
}
