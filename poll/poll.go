// Package poll waits on remote resources with a bounded, fixed-interval loop.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a resource does not settle within MaxAttempts.
var ErrTimeout = errors.New("timed out waiting for status")

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 360
)

// Options bounds a wait loop.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	return o
}

// CheckFunc reports the current status of a resource and whether it is terminal.
type CheckFunc func(ctx context.Context) (status string, done bool, err error)

// StatusLog remembers which statuses a single wait loop has already reported.
type StatusLog map[string]struct{}

// Observe returns the updated log and whether status is new to it.
func (l StatusLog) Observe(status string) (StatusLog, bool) {
	if l == nil {
		l = StatusLog{}
	}
	if _, seen := l[status]; seen {
		return l, false
	}
	l[status] = struct{}{}
	return l, true
}

// Until calls check every Interval until it reports done, fails, the context
// ends, or MaxAttempts checks have been made. onNew is called once for each
// distinct status seen during this call; it may be nil. The final status is
// returned in every case.
func Until(ctx context.Context, opts Options, check CheckFunc, onNew func(status string)) (string, error) {
	opts = opts.withDefaults()

	var (
		seen   StatusLog
		status string
	)
	for attempt := 1; ; attempt++ {
		s, done, err := check(ctx)
		if err != nil {
			return status, err
		}
		status = s

		var isNew bool
		seen, isNew = seen.Observe(status)
		if isNew && onNew != nil {
			onNew(status)
		}
		if done {
			return status, nil
		}
		if attempt >= opts.MaxAttempts {
			return status, fmt.Errorf("%w after %d attempts (last status %q)", ErrTimeout, attempt, status)
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, ctx.Err()
		case <-timer.C:
		}
	}
}
