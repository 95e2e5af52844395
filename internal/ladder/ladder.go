// Package ladder runs ordered fallback strategies: each step is tried in turn
// until one succeeds, and a predicate decides which failures allow the climb
// to continue.
package ladder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted is returned when every step failed.
var ErrExhausted = errors.New("ladder: all steps failed")

// Step is one strategy in a ladder.
type Step[T any] struct {
	Name string
	Do   func(ctx context.Context) (T, error)
}

// Always lets the climb continue after any failure.
func Always(error) bool { return true }

// Climb runs steps in order and returns the first successful result and the
// name of the step that produced it. When a step fails and next(err) is
// false, that error is returned as-is. Cancellation of ctx stops the climb
// between steps.
func Climb[T any](ctx context.Context, steps []Step[T], next func(error) bool) (T, string, error) {
	var zero T
	var errs []error
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}
		v, err := s.Do(ctx)
		if err == nil {
			return v, s.Name, nil
		}
		if ctx.Err() != nil {
			return zero, "", ctx.Err()
		}
		if !next(err) {
			return zero, s.Name, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return zero, "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

// Pause sleeps for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter returns a duration drawn uniformly from [lo, hi].
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
