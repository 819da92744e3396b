package queue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/logging"
)

// Releaser frees handles named in Effects.
type Releaser interface {
	Release(blob.Handle) bool
}

// Event is published to subscribers after every committed action.
type Event struct {
	Action string
	State  State
}

// Store serializes access to the queue state.
type Store struct {
	mu       sync.Mutex
	state    State
	releaser Releaser
	logger   *slog.Logger
	now      func() time.Time

	subs    map[int]chan Event
	nextSub int

	released int
	rejected int
}

// NewStore constructs an empty store. A nil releaser drops release effects.
func NewStore(budget int, output format.Format, releaser Releaser, logger *slog.Logger) *Store {
	return &Store{
		state:    NewState(budget, output),
		releaser: releaser,
		logger:   logging.NewComponentLogger(logger, "queue"),
		now:      time.Now,
		subs:     make(map[int]chan Event),
	}
}

// Dispatch reduces action against the current state and commits the result.
// Rejected actions leave the state untouched and return the reducer error.
func (s *Store) Dispatch(action Action) error {
	if st, ok := action.(SetStatus); ok && st.At.IsZero() {
		st.At = s.now()
		action = st
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, fx, err := Reduce(s.state, action)
	if err != nil {
		s.rejected++
		s.logRejection(action, err)
		return err
	}
	prev := s.state.ConversionStatus
	s.state = next
	for _, h := range fx.Release {
		if s.releaser != nil && s.releaser.Release(h) {
			s.released++
		}
	}
	if prev != next.ConversionStatus {
		s.logger.Info("conversion status changed",
			logging.String("from", string(prev)),
			logging.String("to", string(next.ConversionStatus)),
			logging.Int("active", next.ActiveConversions),
			logging.String(logging.FieldEventType, "conversion_status_changed"),
		)
	}
	s.publish(Event{Action: action.ActionName(), State: next.clone()})
	return nil
}

func (s *Store) logRejection(action Action, err error) {
	name := "<nil>"
	if action != nil {
		name = action.ActionName()
	}
	switch {
	case errors.Is(err, ErrUnknownAction):
		logging.WarnWithContext(s.logger, "unknown queue action ignored", "queue_action_unknown",
			logging.String("action", name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "dispatch one of the queue action types"),
			logging.String(logging.FieldImpact, "state left unchanged"),
		)
	default:
		s.logger.Debug("queue action rejected",
			logging.String("action", name),
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_action_rejected"),
		)
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Item returns the queued item with id.
func (s *Store) Item(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Find(id)
}

// Subscribe registers a buffered listener. Events are dropped for a
// subscriber whose buffer is full. The returned func unsubscribes.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Stats reports how many handles the store released and how many actions it
// rejected.
func (s *Store) Stats() (released, rejected int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released, s.rejected
}
