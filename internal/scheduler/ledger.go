package scheduler

import "sync"

// RetryLedger counts retry attempts for failed items. A failure records an
// entry at its current count; a success or removal clears it.
type RetryLedger struct {
	mu       sync.Mutex
	attempts map[string]int
}

// NewRetryLedger returns an empty ledger.
func NewRetryLedger() *RetryLedger {
	return &RetryLedger{attempts: make(map[string]int)}
}

// Track records a failure and returns the attempts made so far.
func (l *RetryLedger) Track(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.attempts[id]
	if !ok {
		l.attempts[id] = 0
	}
	return n
}

// Increment counts one retry.
func (l *RetryLedger) Increment(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[id]++
	return l.attempts[id]
}

// Clear forgets id.
func (l *RetryLedger) Clear(id string) {
	l.mu.Lock()
	delete(l.attempts, id)
	l.mu.Unlock()
}

// Reset forgets everything.
func (l *RetryLedger) Reset() {
	l.mu.Lock()
	clear(l.attempts)
	l.mu.Unlock()
}

// Attempts returns the retry count for id and whether an entry exists.
func (l *RetryLedger) Attempts(id string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.attempts[id]
	return n, ok
}

// Len returns the number of tracked items.
func (l *RetryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
