package cli

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoCommand      = errors.New("no command given")
	ErrArgMap         = errors.New("failed to map argument(s)")
)

// UsageError means a command was invoked incorrectly. The command's usage is printed when one is returned from a [CommandFunc].
// Any UsageError matches any other with [errors.Is], so callers can check for the category with a zero value.
type UsageError struct {
	cause error
}

func (e *UsageError) Error() string {
	if e.cause == nil {
		return "usage error"
	}
	return "usage error: " + e.cause.Error()
}

func (e *UsageError) Is(target error) bool {
	_, ok := target.(*UsageError)
	return ok
}

func (e *UsageError) Unwrap() error {
	return e.cause
}

// NewUsageError creates a [UsageError] with a cause built by [fmt.Errorf], so %w verbs may be used.
func NewUsageError(format string, args ...any) error {
	return &UsageError{cause: fmt.Errorf(format, args...)}
}
