package history

import (
	"context"
	"time"
)

// EventType classifies run-lifecycle events.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventCrash EventType = "crash"
)

// Event is one row of run history for a script.
type Event struct {
	Script     string    `json:"script"`
	Type       EventType `json:"event"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink records run events and serves them back newest first.
// Implementations must tolerate concurrent callers; write failures are
// logged by callers and never block supervision.
type Sink interface {
	Record(ctx context.Context, ev Event) error
	Recent(ctx context.Context, script string, limit int) ([]Event, error)
	Close() error
}
