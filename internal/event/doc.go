// Package event provides the typed event bus the debug engine publishes on.
//
// Events carry a hierarchical topic, a typed payload and metadata. Handlers
// subscribe with topic patterns (see package topic) and run on a goroutine
// owned by their subscription, so a slow handler never blocks the publisher.
// When a subscription queue is full new events for it are dropped and
// counted in Stats.
//
// # Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//	defer bus.Close()
//
//	sub, err := bus.Subscribe("debug.session.*", event.Typed(
//	    func(ctx context.Context, ev event.Event[engine.Snapshot]) error {
//	        render(ev.Payload)
//	        return nil
//	    }))
package event
