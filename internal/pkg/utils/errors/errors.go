// Package errors provides error utilities used across the project:
// constructors with captured stack traces, a MultiError container
// and prefixing helpers for nested error messages.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// StackTrace is a list of program counters captured when the error was created.
type StackTrace []uintptr

type baseError struct {
	msg   string
	trace StackTrace
}

type wrappedError struct {
	baseError
	err error
}

func New(msg string) error {
	return &baseError{msg: msg, trace: callers()}
}

func Errorf(format string, a ...any) error {
	// Keep wrapping semantics of fmt.Errorf, %w must work.
	err := fmt.Errorf(format, a...)
	if wrapped := errors.Unwrap(err); wrapped != nil {
		return &wrappedError{baseError: baseError{msg: err.Error(), trace: callers()}, err: wrapped}
	}
	return &baseError{msg: err.Error(), trace: callers()}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{baseError: baseError{msg: msg, trace: callers()}, err: err}
}

func Wrapf(err error, format string, a ...any) error {
	if err == nil {
		return nil
	}
	return &wrappedError{baseError: baseError{msg: fmt.Sprintf(format, a...), trace: callers()}, err: err}
}

// PrefixError returns a new error with the "<prefix>: <original>" message,
// the original error stays matchable via Is/As.
func PrefixError(err error, prefix string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		baseError: baseError{msg: prefix + ": " + err.Error(), trace: callers()},
		err:       err,
	}
}

func PrefixErrorf(err error, format string, a ...any) error {
	return PrefixError(err, fmt.Sprintf(format, a...))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func (e *baseError) Error() string {
	return e.msg
}

func (e *baseError) StackTrace() StackTrace {
	return e.trace
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// Format returns a single-line message of the error.
// Multi errors are joined by "; ".
func Format(err error) string {
	var multi MultiError
	if errors.As(err, &multi) {
		parts := make([]string, 0, multi.Len())
		for _, sub := range multi.WrappedErrors() {
			parts = append(parts, Format(sub))
		}
		return strings.Join(parts, "; ")
	}
	return err.Error()
}

func callers() StackTrace {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}
