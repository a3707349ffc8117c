package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/debugsession/internal/event/topic"
)

// Bus is the event bus interface.
type Bus interface {
	// Publish queues an event for every matching subscription. It never
	// blocks on handlers.
	Publish(ctx context.Context, event any) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(sub Subscription) error

	// Close cancels every subscription and waits for running handlers.
	Close() error

	// Stats returns delivery counters.
	Stats() Stats
}

// bus is the default Bus implementation.
type bus struct {
	mu   sync.RWMutex
	subs []*subscription

	config busConfig
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	eventsPublished atomic.Uint64
	eventsDelivered atomic.Uint64
	eventsDropped   atomic.Uint64
	handlerErrors   atomic.Uint64
	handlerPanics   atomic.Uint64
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &bus{
		config: config,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Publish implements Bus.
func (b *bus) Publish(_ context.Context, event any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	tp, ok := event.(TopicProvider)
	if !ok || !tp.EventTopic().IsValid() {
		return ErrInvalidEvent
	}
	t := tp.EventTopic()

	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	b.eventsPublished.Add(1)
	for _, sub := range subs {
		if !sub.accepts(t, event) {
			continue
		}
		if !sub.offer(event) {
			b.eventsDropped.Add(1)
			b.log.Debug("event dropped, subscriber queue full",
				slog.String("subscription", sub.id),
				slog.String("topic", t.String()))
		}
	}
	return nil
}

// Subscribe implements Bus.
func (b *bus) Subscribe(pattern topic.Topic, handler Handler, opts ...SubscriptionOption) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}

	cfg := subscriptionConfig{queueSize: b.config.queueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	sub := newSubscription(b, uuid.NewString(), pattern, handler, cfg)
	b.subs = append(b.subs, sub)
	go sub.run(b.ctx)
	return sub, nil
}

// Unsubscribe implements Bus.
func (b *bus) Unsubscribe(sub Subscription) error {
	s, ok := sub.(*subscription)
	if !ok || s.bus != b {
		return ErrSubscriptionNotFound
	}
	if !b.remove(s) {
		return ErrSubscriptionNotFound
	}
	return nil
}

// remove cancels a subscription and reports whether it was registered.
func (b *bus) remove(s *subscription) bool {
	s.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.subs)
	b.subs = slices.DeleteFunc(b.subs, func(other *subscription) bool {
		return other == s
	})
	return len(b.subs) != n
}

// Close implements Bus.
func (b *bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	b.cancel()
	for _, s := range subs {
		s.cancel()
		<-s.done
	}
	return nil
}

// Stats implements Bus.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	active := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		EventsPublished:   b.eventsPublished.Load(),
		EventsDelivered:   b.eventsDelivered.Load(),
		EventsDropped:     b.eventsDropped.Load(),
		HandlerErrors:     b.handlerErrors.Load(),
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveSubscribers: active,
	}
}
