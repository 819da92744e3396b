package queue

import (
	"fmt"
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/stage"
)

// Effects lists the side effects a committed transition requires.
type Effects struct {
	Release []blob.Handle
}

func (e *Effects) release(h blob.Handle) {
	if h.Valid() {
		e.Release = append(e.Release, h)
	}
}

func (e *Effects) releaseItem(item Item) {
	e.release(item.Preview)
	if item.Converted != nil {
		e.release(item.Converted.Handle)
	}
}

// Reduce applies action to state. On error the returned state is the input
// unchanged and no effects are produced.
func Reduce(state State, action Action) (State, Effects, error) {
	var (
		next State
		fx   Effects
		err  error
	)
	switch a := action.(type) {
	case AddItems:
		next, err = reduceAdd(state, a)
	case RemoveItem:
		next, fx, err = reduceRemove(state, a)
	case SetProgress:
		next, err = reduceProgress(state, a)
	case SetStatus:
		next, fx, err = reduceStatus(state, a)
	case SetOutputFormat:
		next, err = reduceOutputFormat(state, a)
	case SetRunState:
		next, err = reduceRunState(state, a)
	case ClearAll:
		next, fx = reduceClear(state)
	default:
		name := "<nil>"
		if action != nil {
			name = fmt.Sprintf("%T", action)
		}
		return state, Effects{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if err != nil {
		return state, Effects{}, err
	}
	settle(&next)
	return next, fx, nil
}

func reduceAdd(state State, a AddItems) (State, error) {
	next := state.clone()
	seen := make(map[string]struct{}, len(a.Items))
	for _, item := range a.Items {
		if item.ID == "" {
			return state, fmt.Errorf("%w: item without id", ErrInvalidTransition)
		}
		if _, dup := seen[item.ID]; dup || state.index(item.ID) >= 0 || state.IsOrphan(item.ID) {
			return state, fmt.Errorf("%w: duplicate item id %s", ErrInvalidTransition, item.ID)
		}
		seen[item.ID] = struct{}{}
		switch item.Status {
		case "":
			item.Status = StatusIdle
		case StatusIdle:
		case StatusError:
			if item.Error == "" {
				return state, fmt.Errorf("%w: item %s added in error without a message", ErrInvalidTransition, item.ID)
			}
		default:
			return state, fmt.Errorf("%w: item %s added as %s", ErrInvalidTransition, item.ID, item.Status)
		}
		item.Progress = 0
		item.Stage = ""
		item.Converted = nil
		next.Items = append(next.Items, item)
	}
	return next, nil
}

func reduceRemove(state State, a RemoveItem) (State, Effects, error) {
	idx := state.index(a.ID)
	if idx < 0 {
		return state, Effects{}, fmt.Errorf("%w: %s", ErrItemNotFound, a.ID)
	}
	var fx Effects
	next := state.clone()
	item := next.Items[idx]
	fx.releaseItem(item)
	if item.Status == StatusProcessing {
		next.addOrphan(item.ID)
	}
	next.Items = append(next.Items[:idx], next.Items[idx+1:]...)
	return next, fx, nil
}

func reduceProgress(state State, a SetProgress) (State, error) {
	if a.Progress < 0 || a.Progress > 100 {
		return state, fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, a.Progress)
	}
	idx := state.index(a.ID)
	if idx < 0 {
		if state.IsOrphan(a.ID) {
			return state, nil
		}
		return state, fmt.Errorf("%w: %s", ErrItemNotFound, a.ID)
	}
	item := state.Items[idx]
	if item.Status != StatusProcessing {
		return state, fmt.Errorf("%w: progress for %s item %s", ErrInvalidTransition, item.Status, a.ID)
	}
	if a.Progress < item.Progress {
		return state, fmt.Errorf("%w: progress for %s moved backwards (%d -> %d)", ErrInvalidTransition, a.ID, item.Progress, a.Progress)
	}
	if a.Progress == item.Progress {
		return state, nil
	}
	next := state.clone()
	next.Items[idx].Progress = a.Progress
	next.Items[idx].Stage = stage.ForProgress(a.Progress)
	return next, nil
}

func reduceStatus(state State, a SetStatus) (State, Effects, error) {
	idx := state.index(a.ID)
	if idx < 0 {
		if state.IsOrphan(a.ID) && a.Status.Terminal() {
			return completeOrphan(state, a), lateOutput(a), nil
		}
		return state, Effects{}, fmt.Errorf("%w: %s", ErrItemNotFound, a.ID)
	}

	var fx Effects
	next := state.clone()
	item := &next.Items[idx]
	from := item.Status

	switch {
	case from == StatusIdle && a.Status == StatusProcessing:
		if !state.CanStart() {
			return state, Effects{}, fmt.Errorf("%w: budget of %d conversions exhausted", ErrInvalidTransition, state.ConcurrencyBudget)
		}
		target := a.Target
		if !target.IsOutput() {
			target = state.OutputFormat
		}
		item.Status = StatusProcessing
		item.TargetFormat = target
		item.Progress = 0
		item.Stage = stage.Initializing
		item.Converted = nil
		item.Error = ""
		item.StartedAt = a.At
		item.FinishedAt = time.Time{}
		next.ActiveConversions++

	case from == StatusProcessing && a.Status == StatusDone:
		if a.Converted == nil {
			return state, Effects{}, fmt.Errorf("%w: %s marked done without output", ErrInvalidTransition, a.ID)
		}
		converted := *a.Converted
		item.Status = StatusDone
		item.Converted = &converted
		item.Progress = 100
		item.Stage = stage.Finalizing
		item.FinishedAt = a.At
		next.ActiveConversions = decrement(next.ActiveConversions)

	case from == StatusProcessing && a.Status == StatusError:
		if a.Error == "" {
			return state, Effects{}, fmt.Errorf("%w: %s marked error without a message", ErrInvalidTransition, a.ID)
		}
		fx = lateOutput(a)
		item.Status = StatusError
		item.Error = a.Error
		item.Converted = nil
		item.FinishedAt = a.At
		next.ActiveConversions = decrement(next.ActiveConversions)

	case from.Terminal() && a.Status == StatusIdle:
		if item.Converted != nil {
			fx.release(item.Converted.Handle)
		}
		item.Status = StatusIdle
		item.Converted = nil
		item.Error = ""
		item.Progress = 0
		item.Stage = ""
		item.StartedAt = time.Time{}
		item.FinishedAt = time.Time{}

	default:
		return state, Effects{}, fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, from, a.Status, a.ID)
	}
	return next, fx, nil
}

func completeOrphan(state State, a SetStatus) State {
	next := state.clone()
	delete(next.orphans, a.ID)
	next.ActiveConversions = decrement(next.ActiveConversions)
	return next
}

// lateOutput releases an output that arrived with a status that will not
// keep it.
func lateOutput(a SetStatus) Effects {
	var fx Effects
	if a.Converted != nil {
		fx.release(a.Converted.Handle)
	}
	return fx
}

func reduceOutputFormat(state State, a SetOutputFormat) (State, error) {
	if !a.Format.IsOutput() {
		return state, fmt.Errorf("%w: %s is not an output format", ErrInvalidTransition, a.Format)
	}
	next := state.clone()
	next.OutputFormat = a.Format
	return next, nil
}

func reduceRunState(state State, a SetRunState) (State, error) {
	switch a.Run {
	case RunStopped, RunActive, RunPaused:
	default:
		return state, fmt.Errorf("%w: run state %q", ErrInvalidTransition, a.Run)
	}
	next := state.clone()
	next.Run = a.Run
	return next, nil
}

func reduceClear(state State) (State, Effects) {
	var fx Effects
	next := state.clone()
	for _, item := range next.Items {
		fx.releaseItem(item)
		if item.Status == StatusProcessing {
			next.addOrphan(item.ID)
		}
	}
	next.Items = nil
	next.Run = RunStopped
	return next, fx
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

// settle recomputes the aggregate status. A batch whose items are all
// terminal with nothing in flight also drops back to RunStopped, so items
// added later wait for an explicit start.
func settle(s *State) {
	if s.Settled() && len(s.Items) > 0 {
		s.Run = RunStopped
	}
	s.ConversionStatus = deriveStatus(*s)
}

func deriveStatus(s State) ConversionStatus {
	if len(s.Items) == 0 && s.ActiveConversions == 0 {
		return ConversionIdle
	}
	waiting := false
	failed := false
	for _, item := range s.Items {
		switch item.Status {
		case StatusIdle, StatusProcessing:
			waiting = true
		case StatusError:
			failed = true
		}
	}
	if waiting || s.ActiveConversions > 0 {
		switch {
		case s.Run == RunPaused:
			return ConversionPaused
		case s.Run == RunActive || s.ActiveConversions > 0:
			return ConversionProcessing
		default:
			return ConversionIdle
		}
	}
	if failed {
		return ConversionError
	}
	return ConversionComplete
}
