package queue

import "errors"

var (
	// ErrUnknownAction rejects actions outside the closed set handled by Reduce.
	ErrUnknownAction = errors.New("unknown queue action")
	// ErrInvalidTransition rejects actions that would break the item state
	// machine or the concurrency budget.
	ErrInvalidTransition = errors.New("invalid queue transition")
	// ErrItemNotFound reports an action naming an id that is neither queued nor
	// orphaned.
	ErrItemNotFound = errors.New("queue item not found")
)
