package event

import "log/slog"

// BusOption configures an event Bus.
type BusOption func(*busConfig)

type busConfig struct {
	// queueSize is the default per-subscription queue size.
	queueSize int

	logger *slog.Logger
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize: 256,
	}
}

// WithQueueSize sets the default per-subscription queue size.
func WithQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *slog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	filter    FilterFunc
	once      bool
	queueSize int
}

// WithFilter only delivers events for which f returns true.
func WithFilter(f FilterFunc) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.filter = f
	}
}

// WithOnce cancels the subscription after the first delivered event.
func WithOnce() SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.once = true
	}
}

// WithSubscriptionQueueSize overrides the bus queue size for one subscription.
func WithSubscriptionQueueSize(size int) SubscriptionOption {
	return func(c *subscriptionConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}
