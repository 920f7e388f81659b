package storage

import (
	"github.com/pkg/errors"
)

type storageError string

const (
	ErrNotFound    = storageError("not found")
	ErrUnavailable = storageError("session store unavailable")
)

func (e storageError) Error() string {
	return string(e)
}

type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string        { return e.cause.Error() }
func (e *unavailableError) Unwrap() error        { return e.cause }
func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps a driver error so that errors.Is(err, ErrUnavailable)
// holds. Callers treat such errors as retryable.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &unavailableError{cause: errors.Wrap(err, msg)}
}
