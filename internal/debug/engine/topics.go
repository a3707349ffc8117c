package engine

import "github.com/dshills/debugsession/internal/event/topic"

// Bus topics published by the engine.
const (
	// TopicSessionChanged carries a Snapshot after every change.
	TopicSessionChanged topic.Topic = "debug.session.changed"

	// TopicSessionPaused carries a Snapshot when execution pauses.
	TopicSessionPaused topic.Topic = "debug.session.paused"

	// TopicSessionResumed carries a Snapshot when execution resumes.
	TopicSessionResumed topic.Topic = "debug.session.resumed"

	// TopicSessionStopped carries a Snapshot when the session ends.
	TopicSessionStopped topic.Topic = "debug.session.stopped"

	// TopicOutputReceived carries an OutputLine.
	TopicOutputReceived topic.Topic = "debug.output.received"

	// TopicCommandFailed carries a CommandFailure.
	TopicCommandFailed topic.Topic = "debug.command.failed"
)

// EventSource is the source recorded on published events.
const EventSource = "debug.engine"
