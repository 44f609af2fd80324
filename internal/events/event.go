// Package events carries project mutation notifications from the entity
// store to the embedding refresh pipeline.
//
// Publishers call Publish only after their transaction has committed, so a
// consumer reloading the project by id always sees the committed row.
// MemoryQueue delivers at most once; BoltQueue persists events until they
// are acknowledged and redelivers unacknowledged events after a restart.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the mutation that produced an event
type Kind string

const (
	KindCreated Kind = "CREATED"
	KindUpdated Kind = "UPDATED"
)

var (
	// ErrQueueClosed is returned by Publish after Close
	ErrQueueClosed = errors.New("event queue closed")

	// ErrUnknownKind is returned for kinds other than CREATED and UPDATED
	ErrUnknownKind = errors.New("unknown event kind")
)

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindCreated, KindUpdated:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Event announces that a project was created or updated
type Event struct {
	ID        uuid.UUID `json:"id"`
	ProjectID int64     `json:"project_id"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	// seq is the outbox position, set by queues that persist events
	seq uint64
}

// New creates an event with a fresh id
func New(projectID int64, kind Kind) Event {
	return Event{
		ID:        uuid.New(),
		ProjectID: projectID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// Queue transports events from publishers to a single consumer
type Queue interface {
	// Publish enqueues ev. It may block until there is room or ctx ends.
	Publish(ctx context.Context, ev Event) error

	// Events returns the delivery channel. It is closed by Close.
	Events() <-chan Event

	// Ack marks ev as processed. Queues without persistence ignore it.
	Ack(ctx context.Context, ev Event) error

	// Pending returns the number of events not yet acknowledged
	Pending() (int, error)

	Close() error
}
