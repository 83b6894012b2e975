package stream

import (
	"github.com/jedarden/stickycheese/pkg/models"
)

// EventKind identifies the type of a stream event.
type EventKind int

const (
	// EventDelta carries the next piece of the assistant reply.
	EventDelta EventKind = iota
	// EventDone marks successful completion.
	EventDone
	// EventError marks failure; Err holds the cause.
	EventError
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of a stream. Exactly one Done or Error event ends a
// stream that was not cancelled.
type Event struct {
	Kind EventKind
	Text string
	Err  error

	// Truncated is set on Done when the body ended without the provider's
	// end-of-stream marker.
	Truncated bool
}

// State is the lifecycle state of a Stream.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events can follow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Request describes one chat turn.
type Request struct {
	Messages     []models.Message
	ModelID      string
	APIKey       string
	SystemPrompt string

	// RelayURL, when set, routes the request through a relay.
	RelayURL string
}
