package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newPostCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// usageExitCode is returned for invalid invocations.
const usageExitCode = 255

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(format string, args ...any) error {
	return &exitError{code: usageExitCode, err: fmt.Errorf(format, args...)}
}
