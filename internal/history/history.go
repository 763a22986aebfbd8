package history

import (
	"context"
	"time"

	"github.com/yumo666666/nasweb/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart          EventType = "start"
	EventStop           EventType = "stop"
	EventUnexpectedExit EventType = "unexpected_exit"
)

// Event is a lifecycle event exported to external systems.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; Send failures are logged by callers, never fatal.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
