// Package queue owns the conversion queue state and the rules for changing
// it.
//
// Reduce is a pure function from (State, Action) to the next State plus the
// Effects the caller must apply: handles to release once the new state is
// committed. Every transition recomputes the aggregate ConversionStatus, so
// that field is never set directly. Store wraps Reduce with a mutex, applies
// effects through a Releaser, logs rejected actions, and fans committed
// snapshots out to subscribers.
//
// Items removed while a conversion is in flight are remembered as orphans
// until their pipeline reports back; the terminal status for an orphan only
// decrements the active counter and releases the late output.
//
// Treat this package as the single source of truth for queue semantics.
package queue
