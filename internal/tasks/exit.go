package tasks

import (
	"errors"
	"fmt"
)

// Exit codes produced by the runner itself.
const (
	ExitFailure  = 1
	ExitUsage    = 2
	ExitNotFound = 127
)

// ExitError carries the process exit code a failed target maps to.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code: 0 for nil, the carried code for
// an *ExitError and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code <= 0 {
			return ExitFailure
		}
		return exitErr.Code
	}
	return ExitFailure
}
