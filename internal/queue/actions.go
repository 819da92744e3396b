package queue

import (
	"time"

	"pixelbatch/internal/format"
)

// Action is a request to change the queue. Reduce handles the closed set
// defined in this file and rejects anything else.
type Action interface {
	ActionName() string
}

// AddItems appends new items. Each must carry a fresh id and start idle, or
// in error when its preview could not be produced.
type AddItems struct {
	Items []Item
}

// RemoveItem deletes one item and releases everything it owns.
type RemoveItem struct {
	ID string
}

// SetProgress records pipeline progress for a processing item.
type SetProgress struct {
	ID       string
	Progress int
}

// SetStatus moves an item through its state machine. Target is read when
// entering processing, Converted when entering done, Error when entering
// error. At stamps StartedAt/FinishedAt.
type SetStatus struct {
	ID        string
	Status    Status
	Target    format.Format
	Converted *ConvertedFile
	Error     string
	At        time.Time
}

// SetOutputFormat changes the target for future admissions.
type SetOutputFormat struct {
	Format format.Format
}

// SetRunState records a start, pause, resume, or stop request.
type SetRunState struct {
	Run RunState
}

// ClearAll empties the queue and releases every owned handle.
type ClearAll struct{}

func (AddItems) ActionName() string        { return "add_items" }
func (RemoveItem) ActionName() string      { return "remove_item" }
func (SetProgress) ActionName() string     { return "set_progress" }
func (SetStatus) ActionName() string       { return "set_status" }
func (SetOutputFormat) ActionName() string { return "set_output_format" }
func (SetRunState) ActionName() string     { return "set_run_state" }
func (ClearAll) ActionName() string        { return "clear_all" }
