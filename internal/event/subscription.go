package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/debugsession/internal/event/topic"
)

// Subscription is an active event subscription.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed topic pattern.
	Topic() topic.Topic

	// IsActive reports whether the subscription still receives events.
	IsActive() bool
}

// subscription delivers events to its handler on its own goroutine, in
// publish order.
type subscription struct {
	id      string
	pattern topic.Topic
	handler Handler
	config  subscriptionConfig
	bus     *bus

	queue chan any
	stop  chan struct{}
	done  chan struct{}

	active   atomic.Bool
	fired    atomic.Bool
	stopOnce sync.Once
}

func newSubscription(b *bus, id string, pattern topic.Topic, handler Handler, cfg subscriptionConfig) *subscription {
	s := &subscription{
		id:      id,
		pattern: pattern,
		handler: handler,
		config:  cfg,
		bus:     b,
		queue:   make(chan any, cfg.queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

func (s *subscription) ID() string         { return s.id }
func (s *subscription) Topic() topic.Topic { return s.pattern }
func (s *subscription) IsActive() bool     { return s.active.Load() }

// accepts reports whether the event should be queued for this subscription.
func (s *subscription) accepts(t topic.Topic, event any) bool {
	if !s.IsActive() || !t.Matches(s.pattern) {
		return false
	}
	if s.config.filter != nil && !s.config.filter(event) {
		return false
	}
	if s.config.once && !s.fired.CompareAndSwap(false, true) {
		return false
	}
	return true
}

// offer queues an event without blocking.
func (s *subscription) offer(event any) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscription) cancel() {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		close(s.stop)
	})
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.queue:
			s.deliver(ctx, ev)
			if s.config.once {
				s.bus.remove(s)
				return
			}
		}
	}
}

func (s *subscription) deliver(ctx context.Context, ev any) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.handlerPanics.Add(1)
			s.bus.log.Error("event handler panicked",
				slog.String("subscription", s.id),
				slog.Any("error", &PanicError{SubscriptionID: s.id, Value: r}))
		}
	}()

	if err := s.handler.Handle(ctx, ev); err != nil {
		s.bus.handlerErrors.Add(1)
		s.bus.log.Warn("event handler failed",
			slog.String("subscription", s.id),
			slog.String("topic", s.pattern.String()),
			slog.Any("error", err))
		return
	}
	s.bus.eventsDelivered.Add(1)
}
