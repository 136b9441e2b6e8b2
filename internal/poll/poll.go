// Package poll implements the "wait, check, repeat until satisfied or out of
// budget" loop shared by startup detection and shutdown confirmation.
package poll

import (
	"context"
	"errors"
	"time"
)

// Options bound a polling loop. At least one of Timeout and Attempts must be set.
type Options struct {
	// Interval is the wait before every check.
	Interval time.Duration
	// Timeout bounds the total time spent polling; zero means no time bound.
	Timeout time.Duration
	// Attempts bounds the number of checks; zero means no attempt bound.
	Attempts int
}

// ErrUnbounded is returned when neither Timeout nor Attempts is set.
var ErrUnbounded = errors.New("poll needs a timeout or an attempt bound")

// Until waits Interval, evaluates done and repeats until done returns true or
// the budget is exhausted. It reports whether done was satisfied. The only
// errors are ErrUnbounded and the context error on cancellation.
func Until(ctx context.Context, opts Options, done func(ctx context.Context) bool) (bool, error) {
	if opts.Timeout <= 0 && opts.Attempts <= 0 {
		return false, ErrUnbounded
	}

	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	timer := time.NewTimer(opts.Interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}

		if done(ctx) {
			return true, nil
		}

		if opts.Attempts > 0 && attempt >= opts.Attempts {
			return false, nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, nil
		}

		timer.Reset(opts.Interval)
	}
}
