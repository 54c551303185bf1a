package cli

import (
	"fmt"
)

// MapArgs maps positional arguments to targets, requiring at least minArgs of them.
// The returned error is a [UsageError] wrapping [ErrArgMap], so the command's usage is printed.
func MapArgs(args []string, minArgs int, targets ...*string) error {
	if len(args) < minArgs {
		return NewUsageError("%w: expected at least %d argument(s), got %d", ErrArgMap, minArgs, len(args))
	}
	if len(args) > len(targets) {
		return NewUsageError("%w: expected at most %d argument(s), got %d", ErrArgMap, len(targets), len(args))
	}
	for i, arg := range args {
		if targets[i] == nil {
			panic(fmt.Sprintf("nil target for argument %d", i))
		}
		*targets[i] = arg
	}
	return nil
}
