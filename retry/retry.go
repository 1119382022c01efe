// Package retry is a generic bounded-retry executor: run a function,
// report each failure, sleep, try again up to a cap, then propagate the
// last error to the caller.
package retry

import (
	"context"
	"time"
)

const DefaultMaxTries = 5

// Reporter receives every failed attempt. Implementations typically feed
// an error log or tracker; a nil Reporter disables reporting.
type Reporter interface {
	Report(ctx context.Context, op string, attempt int, err error)
}

type Options struct {
	Op       string
	MaxTries int                 // defaults to DefaultMaxTries
	Delay    time.Duration       // pause between attempts
	Sleep    func(time.Duration) // defaults to time.Sleep
}

// Do invokes fn until it succeeds or MaxTries attempts are exhausted.
// Every failure is reported; only the final one is returned.
func Do(ctx context.Context, rep Reporter, opts Options, fn func(context.Context) error) error {
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxTries
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 1; attempt <= maxTries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if rep != nil {
			rep.Report(ctx, opts.Op, attempt, err)
		}
		if attempt == maxTries {
			break
		}
		if ctx.Err() != nil {
			return err
		}
		if opts.Delay > 0 {
			sleep(opts.Delay)
		}
	}
	return err
}

// DoValue is Do for functions that return a value.
func DoValue[T any](ctx context.Context, rep Reporter, opts Options, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, rep, opts, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
