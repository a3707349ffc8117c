package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/debugsession/internal/event/topic"
)

// Event is a published notification. Payloads are values; a handler never
// sees a payload another handler can mutate.
type Event[T any] struct {
	Type     topic.Topic
	Payload  T
	Metadata Metadata
}

// Metadata identifies an event and the session state it was produced in.
type Metadata struct {
	ID        string
	Timestamp time.Time
	Source    string

	// SessionID and Generation are set for events produced by a debug
	// session. Generation lets late consumers drop notifications that
	// describe an earlier pause point.
	SessionID  string
	Generation uint64
}

// NewEvent stamps payload with a fresh id and the current time.
func NewEvent[T any](t topic.Topic, payload T, source string) Event[T] {
	return Event[T]{
		Type:    t,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// ForSession returns a copy tagged with a session and generation.
func (e Event[T]) ForSession(id string, generation uint64) Event[T] {
	e.Metadata.SessionID = id
	e.Metadata.Generation = generation
	return e
}

// EventTopic implements TopicProvider.
func (e Event[T]) EventTopic() topic.Topic { return e.Type }

// EventMetadata returns the metadata without knowing T.
func (e Event[T]) EventMetadata() Metadata { return e.Metadata }

// TopicProvider is implemented by anything the bus can route.
type TopicProvider interface {
	EventTopic() topic.Topic
}
