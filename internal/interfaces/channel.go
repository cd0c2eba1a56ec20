package interfaces

import (
	"context"

	"github.com/ternarybob/highlight/internal/models"
)

// HandlerID identifies one attached channel handler so it can be detached later
type HandlerID uint64

// EventHandler receives decoded channel events
type EventHandler func(event models.Event)

// Channel is the single bidirectional event connection of a client process
type Channel interface {
	// Connect ensures a live connection; concurrent callers share one attempt
	Connect(ctx context.Context) error

	// On ensures a connection, then attaches handler for event
	On(ctx context.Context, event string, handler EventHandler) (HandlerID, error)

	// Off detaches the given handlers, or every handler for event when none are given
	Off(event string, ids ...HandlerID)

	// Emit sends fire-and-forget; dropped when not connected
	Emit(event string, data interface{})

	// IsConnected reflects the current transport state
	IsConnected() bool
}

// Conn is one live transport handle
type Conn interface {
	ReadEnvelope() (models.Envelope, error)
	WriteEnvelope(env models.Envelope) error
	Close() error
}

// Transport opens transport handles
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// SubscriptionCallbacks are the optional per-event callbacks of a job subscription
type SubscriptionCallbacks struct {
	OnProgress func(models.ProgressEvent)
	OnJoined   func(models.JoinedEvent)
	OnStatus   func(models.TaskStatusEvent)
}

// SubscriptionRegistry tracks at most one subscription per task id
type SubscriptionRegistry interface {
	Subscribe(ctx context.Context, taskID string, callbacks SubscriptionCallbacks) error
	Unsubscribe(taskID string)
	Has(taskID string) bool
}
