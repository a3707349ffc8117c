package event

import "context"

// Handler processes events delivered to a subscription.
type Handler interface {
	// Handle processes an event. The event is type-erased; use Typed for
	// type-safe handlers.
	Handle(ctx context.Context, event any) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, event any) error

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// TypedHandlerFunc handles events with a known payload type.
type TypedHandlerFunc[T any] func(ctx context.Context, event Event[T]) error

// Typed converts a typed handler to a Handler. Events with another payload
// type are skipped.
func Typed[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, event any) error {
		if e, ok := event.(Event[T]); ok {
			return fn(ctx, e)
		}
		return nil
	})
}

// FilterFunc decides whether a subscription receives an event.
type FilterFunc func(event any) bool

// Stats are cumulative delivery counters.
type Stats struct {
	EventsPublished   uint64
	EventsDelivered   uint64
	// EventsDropped counts events lost to full subscription queues.
	EventsDropped     uint64
	HandlerErrors     uint64
	HandlerPanics     uint64
	ActiveSubscribers int
}
