package queue

import (
	"time"

	"pixelbatch/internal/blob"
	"pixelbatch/internal/format"
	"pixelbatch/internal/stage"
)

// Status represents the lifecycle of a queue item.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether the status ends a run.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusError }

// ConversionStatus is the aggregate status of the whole queue.
type ConversionStatus string

const (
	ConversionIdle       ConversionStatus = "idle"
	ConversionProcessing ConversionStatus = "processing"
	ConversionPaused     ConversionStatus = "paused"
	ConversionError      ConversionStatus = "error"
	ConversionComplete   ConversionStatus = "complete"
)

// RunState is what the user asked the batch to do.
type RunState string

const (
	RunStopped RunState = "stopped"
	RunActive  RunState = "active"
	RunPaused  RunState = "paused"
)

// ConvertedFile is the output of a successful conversion and the handle that
// keeps it resolvable.
type ConvertedFile struct {
	File   blob.File
	Handle blob.Handle
}

// Item is one queued source image.
type Item struct {
	ID           string
	Source       blob.File
	Preview      blob.Handle
	Status       Status
	Progress     int
	Stage        stage.Stage
	Converted    *ConvertedFile
	Error        string
	TargetFormat format.Format
	AddedAt      time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ReductionPercent reports how much smaller the converted output is than the
// source, or 0 when there is no output or it grew.
func (i Item) ReductionPercent() int {
	if i.Converted == nil || i.Source.Size() == 0 {
		return 0
	}
	saved := i.Source.Size() - i.Converted.File.Size()
	if saved <= 0 {
		return 0
	}
	return int(saved * 100 / i.Source.Size())
}

// Counts tallies items per status.
type Counts struct {
	Idle       int
	Processing int
	Done       int
	Error      int
}

// Total returns the number of counted items.
func (c Counts) Total() int { return c.Idle + c.Processing + c.Done + c.Error }

// State is the full queue state. Values are treated as immutable: Reduce
// returns a new State and never mutates its input.
type State struct {
	Items             []Item
	OutputFormat      format.Format
	ActiveConversions int
	ConversionStatus  ConversionStatus
	ConcurrencyBudget int
	Run               RunState

	orphans map[string]struct{}
}

// NewState returns an empty queue with the given budget and initial target.
func NewState(budget int, output format.Format) State {
	if budget < 1 {
		budget = 1
	}
	return State{
		OutputFormat:      output,
		ConcurrencyBudget: budget,
		ConversionStatus:  ConversionIdle,
		Run:               RunStopped,
	}
}

// Find returns the item with id.
func (s State) Find(id string) (Item, bool) {
	if idx := s.index(id); idx >= 0 {
		return s.Items[idx], true
	}
	return Item{}, false
}

// Counts tallies items per status.
func (s State) Counts() Counts {
	var c Counts
	for _, item := range s.Items {
		switch item.Status {
		case StatusIdle:
			c.Idle++
		case StatusProcessing:
			c.Processing++
		case StatusDone:
			c.Done++
		case StatusError:
			c.Error++
		}
	}
	return c
}

// CanStart reports whether another conversion fits in the budget.
func (s State) CanStart() bool {
	return s.ActiveConversions < s.ConcurrencyBudget
}

// AllDoneIn reports whether the queue is non-empty and every item has been
// converted to f.
func (s State) AllDoneIn(f format.Format) bool {
	if len(s.Items) == 0 {
		return false
	}
	for _, item := range s.Items {
		if item.Status != StatusDone || item.TargetFormat != f {
			return false
		}
	}
	return true
}

// Done returns the converted items in insertion order.
func (s State) Done() []Item {
	out := make([]Item, 0, len(s.Items))
	for _, item := range s.Items {
		if item.Status == StatusDone && item.Converted != nil {
			out = append(out, item)
		}
	}
	return out
}

// NextIdle returns the first idle item, in insertion order, for which skip
// returns false.
func (s State) NextIdle(skip func(id string) bool) (Item, bool) {
	for _, item := range s.Items {
		if item.Status != StatusIdle {
			continue
		}
		if skip != nil && skip(item.ID) {
			continue
		}
		return item, true
	}
	return Item{}, false
}

// Orphans returns how many removed items still have a conversion in flight.
func (s State) Orphans() int { return len(s.orphans) }

// IsOrphan reports whether id was removed while processing.
func (s State) IsOrphan(id string) bool {
	_, ok := s.orphans[id]
	return ok
}

// Settled reports whether nothing is in flight and no item is waiting.
func (s State) Settled() bool {
	if s.ActiveConversions > 0 {
		return false
	}
	for _, item := range s.Items {
		if !item.Status.Terminal() {
			return false
		}
	}
	return true
}

func (s State) index(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// clone copies the slice and orphan set so the result can be modified
// without touching s. Item values are copied; their blobs are shared.
func (s State) clone() State {
	next := s
	if s.Items != nil {
		next.Items = make([]Item, len(s.Items))
		copy(next.Items, s.Items)
	}
	if len(s.orphans) > 0 {
		next.orphans = make(map[string]struct{}, len(s.orphans))
		for id := range s.orphans {
			next.orphans[id] = struct{}{}
		}
	} else {
		next.orphans = nil
	}
	return next
}

func (s *State) addOrphan(id string) {
	if s.orphans == nil {
		s.orphans = make(map[string]struct{})
	}
	s.orphans[id] = struct{}{}
}
