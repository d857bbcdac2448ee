package network

import (
	"errors"
	"fmt"
)

// ErrClockBusy is the benign rejection for a force-tick that races an
// in-flight tick. It is reported to the caller, never logged as an error.
var ErrClockBusy = errors.New("tick already processing")

// ValidationError is an action failing a business rule. It rejects that
// action only; the tick continues.
type ValidationError struct {
	Code   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func reject(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// ExternalDependencyError wraps a reasoning-collaborator failure. The tick
// falls back to the deterministic path and proceeds without narrative.
type ExternalDependencyError struct {
	Op  string
	Err error
}

func (e *ExternalDependencyError) Error() string {
	return fmt.Sprintf("external dependency %s: %v", e.Op, e.Err)
}

func (e *ExternalDependencyError) Unwrap() error { return e.Err }
