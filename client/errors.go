package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotActive is returned when an operation needs an admitted instance.
var ErrNotActive = errors.New("client instance is not active")

// ConflictError is an admission refusal. The instance is not admitted and
// must not retry until the user decides (for example to displace another
// instance).
type ConflictError struct {
	Scope  string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Scope == "user" {
		return "maximum concurrent sessions reached for this user"
	}
	return "maximum concurrent users reached system-wide"
}

// StatusError is any other non-2xx answer.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("session service returned %d: %s", e.Code, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

func isPermanent(err error) bool {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && !status.Temporary()
}
