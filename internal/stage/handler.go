package stage

import "context"

// Checker is implemented by conversion primitives that can report whether
// they are usable in the current process.
type Checker interface {
	HealthCheck(context.Context) Health
}

// CheckAll runs every checker in order.
func CheckAll(ctx context.Context, checkers ...Checker) []Health {
	out := make([]Health, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		out = append(out, c.HealthCheck(ctx))
	}
	return out
}
