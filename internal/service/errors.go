package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and entity state misuse. Handlers map them to
// HTTP status codes; services never swallow them.
var (
	ErrAlreadyOpen = errors.New("cash session is already open")
	ErrNotOpen     = errors.New("cash session is not open")
	ErrNotFound    = errors.New("not found")
)

// ValidationError rejects bad amounts or unknown enum values on transaction
// creation and other malformed domain input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// InvalidTransitionError rejects illegal order status changes.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}
