package store

import (
	"context"
	"time"
)

// Record is one child lifecycle event persisted to the run history.
// Event is "start", "stop" or "unexpected_exit".
type Record struct {
	Name   string    `json:"name"`
	PID    int       `json:"pid"`
	Event  string    `json:"event"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Store persists the run history. Implementations must be safe for use from
// the supervisor goroutine and the control API concurrently.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
