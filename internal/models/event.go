package models

// StreamEventKind identifies a named event on the run feed.
type StreamEventKind string

const (
	// StreamEventData carries a partial batch of messages for the current turn.
	StreamEventData StreamEventKind = "data"
	// StreamEventMetadata carries the run id assigned to the current turn.
	StreamEventMetadata StreamEventKind = "metadata"
	// StreamEventError signals an application-level failure from the remote side.
	StreamEventError StreamEventKind = "error"
)

// StreamEvent is one decoded event from a run's streaming feed.
type StreamEvent struct {
	Kind StreamEventKind

	// Messages would be filled if Kind is StreamEventData.
	Messages []Message
	// RunID would be filled if Kind is StreamEventMetadata.
	RunID string
	// Detail would be filled if Kind is StreamEventError, when the server includes one.
	Detail string
}
