package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrHostNotAttached is returned when no engine is attached.
	ErrHostNotAttached = errors.New("host engine not attached")

	// ErrEmptyScript is returned when submitting an empty script.
	ErrEmptyScript = errors.New("empty script")

	// ErrEmptyFunction is returned when calling a function with no name.
	ErrEmptyFunction = errors.New("empty function name")
)

// SubmitError wraps a failed submission with what was being submitted.
type SubmitError struct {
	Op     string
	Target string
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("bridge %s %q: %v", e.Op, e.Target, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
