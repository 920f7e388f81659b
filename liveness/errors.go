package liveness

import (
	"errors"
	"fmt"
)

// LimitCode is the distinguishable code for a capacity refusal.
const LimitCode = "CONCURRENT_LIMIT_EXCEEDED"

var (
	ErrConcurrentLimit = errors.New(LimitCode)
	ErrInvalidInput    = errors.New("invalid input")
)

type LimitScope string

const (
	// ScopeUser means the user already holds as many instances as allowed.
	ScopeUser LimitScope = "user"
	// ScopeGlobal means the license cap on distinct users is reached.
	ScopeGlobal LimitScope = "global"
)

// LimitError is a capacity refusal. errors.Is(err, ErrConcurrentLimit)
// holds for every LimitError.
type LimitError struct {
	Scope LimitScope
	Limit int
	Live  int64
}

func (e *LimitError) Error() string {
	if e.Scope == ScopeUser {
		return fmt.Sprintf("maximum concurrent sessions reached for this user (%d of %d)", e.Live, e.Limit)
	}
	return fmt.Sprintf("maximum concurrent users reached system-wide (%d of %d)", e.Live, e.Limit)
}

func (e *LimitError) Unwrap() error {
	return ErrConcurrentLimit
}
