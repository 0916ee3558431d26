package errors

import (
	"strings"
	"sync"
)

// MultiError is a thread-safe container for multiple errors.
type MultiError interface {
	error
	Len() int
	Append(errs ...error)
	AppendWithPrefix(err error, prefix string)
	AppendWithPrefixf(err error, format string, a ...any)
	WrappedErrors() []error
	// ErrorOrNil returns nil if the container is empty,
	// the only error if it contains exactly one, otherwise the container itself.
	ErrorOrNil() error
}

type multiError struct {
	lock *sync.Mutex
	errs []error
}

func NewMultiError() MultiError {
	return &multiError{lock: &sync.Mutex{}}
}

func (e *multiError) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.errs)
}

func (e *multiError) Append(errs ...error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, err := range errs {
		if err == nil {
			continue
		}
		// Flatten nested multi errors
		if v, ok := err.(*multiError); ok { // nolint: errorlint
			e.errs = append(e.errs, v.WrappedErrors()...)
		} else {
			e.errs = append(e.errs, err)
		}
	}
}

func (e *multiError) AppendWithPrefix(err error, prefix string) {
	e.Append(PrefixError(err, prefix))
}

func (e *multiError) AppendWithPrefixf(err error, format string, a ...any) {
	e.Append(PrefixErrorf(err, format, a...))
}

func (e *multiError) WrappedErrors() []error {
	e.lock.Lock()
	defer e.lock.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

func (e *multiError) ErrorOrNil() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	switch len(e.errs) {
	case 0:
		return nil
	case 1:
		return e.errs[0]
	default:
		return e
	}
}

func (e *multiError) Error() string {
	e.lock.Lock()
	defer e.lock.Unlock()
	parts := make([]string, len(e.errs))
	for i, err := range e.errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *multiError) Unwrap() []error {
	return e.WrappedErrors()
}
