package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when a window budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is returned when the counter backend fails.
	ErrRedisUnavailable = errors.New("rate redis unavailable")
)

// ExceededError carries the remaining window so callers can surface a
// retry hint. It matches ErrRateLimited under errors.Is.
type ExceededError struct {
	Route      string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limited on %s, retry in %s", e.Route, e.RetryAfter)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}
