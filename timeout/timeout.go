package timeout

import (
	"context"
	"errors"
	"time"

	"github.com/janusproxy/janus/fault"
)

// Do runs fn under a deadline of d. The context handed to fn is cancelled
// when the deadline expires; an error surfaced because of that expiry is
// reported as a fault.Timeout naming op. Do never retries.
func Do[T any](ctx context.Context, d time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, &fault.Timeout{Op: op, Duration: d}
	}
	return v, err
}

// Scope tracks a total budget across several sequential operations on a
// monotonic clock. It is plumbing for a total-request deadline policy; the
// proxy paths do not consume it yet.
type Scope struct {
	start time.Time
	total time.Duration
}

func NewScope(total time.Duration) *Scope {
	return &Scope{start: time.Now(), total: total}
}

// Elapsed is the time spent since the scope was opened.
func (s *Scope) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Remaining is the unused part of the budget, never negative.
func (s *Scope) Remaining() time.Duration {
	r := s.total - s.Elapsed()
	if r < 0 {
		return 0
	}
	return r
}

func (s *Scope) Expired() bool {
	return s.Remaining() <= 0
}
