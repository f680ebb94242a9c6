package model

import "fmt"

// InvariantError reports a violated data-model invariant (spec.md §3).
type InvariantError struct{ msg string }

func (e *InvariantError) Error() string { return e.msg }

func errInvariant(format string, args ...any) error {
	return &InvariantError{msg: fmt.Sprintf(format, args...)}
}
