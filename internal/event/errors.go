package event

import (
	"errors"
	"fmt"
)

var (
	ErrBusClosed            = errors.New("event bus is closed")
	ErrInvalidEvent         = errors.New("event has no valid topic")
	ErrInvalidTopic         = errors.New("invalid topic pattern")
	ErrNilHandler           = errors.New("nil handler")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// PanicError records a recovered handler panic.
type PanicError struct {
	SubscriptionID string
	Value          any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("subscription %s: handler panicked: %v", e.SubscriptionID, e.Value)
}
