package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/debugsession/internal/event"
)

// Default settings.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultOutputLines    = 500
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger         *slog.Logger
	bus            event.Bus
	tracer         trace.Tracer
	requestTimeout time.Duration
	outputLines    int
	sessionID      string
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		requestTimeout: DefaultRequestTimeout,
		outputLines:    DefaultOutputLines,
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithBus publishes snapshots and notifications on bus.
func WithBus(bus event.Bus) Option {
	return func(c *engineConfig) {
		c.bus = bus
	}
}

// WithTracer sets the tracer used for adapter request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithRequestTimeout bounds every adapter request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithOutputLines bounds the retained output buffer.
func WithOutputLines(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.outputLines = n
		}
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(c *engineConfig) {
		c.sessionID = id
	}
}
