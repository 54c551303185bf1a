// Package retry repeats an operation with a growing delay until it succeeds, fails permanently, or runs out of attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidPolicy = errors.New("invalid retry policy")
	ErrExhausted     = errors.New("retry attempts exhausted")
)

// Policy defines the backoff behavior for [Do].
type Policy struct {
	Attempts int           // Attempts is the total number of tries, and must be at least 1.
	Delay    time.Duration // Delay is the wait before the second attempt.
	Backoff  float64       // Backoff multiplies the delay after each retry, and must be >= 1.
}

func (p Policy) validate() error {
	switch {
	case p.Attempts < 1:
		return fmt.Errorf("%w: attempts should be >= 1", ErrInvalidPolicy)
	case p.Backoff < 1:
		return fmt.Errorf("%w: backoff should be >= 1", ErrInvalidPolicy)
	case p.Delay < 0:
		return fmt.Errorf("%w: delay should be >= 0", ErrInvalidPolicy)
	}
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as not worth retrying, so [Do] returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it returns nil, returns an error wrapped with [Permanent], or the policy's attempts are used up.
// Once attempts are exhausted, the error wraps both [ErrExhausted] and the last error from fn.
// A cancelled context stops the loop between attempts.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if err := policy.validate(); err != nil {
		return err
	}
	delay := policy.Delay
	var lastErr error
	for attempt := range policy.Attempts {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
			delay = time.Duration(float64(delay) * policy.Backoff)
		} else if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, policy.Attempts, lastErr)
}
