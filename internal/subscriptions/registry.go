// Package subscriptions tracks which task rooms the client is listening to.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

// ErrEmptyTaskID is returned when subscribing without a task id
var ErrEmptyTaskID = errors.New("task id is required")

type binding struct {
	event string
	id    interfaces.HandlerID
}

type subscription struct {
	taskID   string
	bindings []binding
	active   atomic.Bool
}

// Registry implements interfaces.SubscriptionRegistry.
// It holds zero or one subscription per task id.
type Registry struct {
	channel interfaces.Channel
	logger  arbor.ILogger

	mu      sync.Mutex
	entries map[string]*subscription

	locksMu sync.Mutex
	locks   map[string]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates a registry bound to channel
func NewRegistry(channel interfaces.Channel, logger arbor.ILogger) *Registry {
	return &Registry{
		channel: channel,
		logger:  logger,
		entries: make(map[string]*subscription),
		locks:   make(map[string]*taskLock),
	}
}

// Subscribe replaces any existing subscription for taskID with a fresh handler set
// and asks the server to join the task room. The join is emitted only after every
// handler is attached. On connect failure no entry is recorded.
func (r *Registry) Subscribe(ctx context.Context, taskID string, callbacks interfaces.SubscriptionCallbacks) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}

	unlock := r.lockTask(taskID)
	defer unlock()

	r.Unsubscribe(taskID)

	if err := r.channel.Connect(ctx); err != nil {
		r.logger.Error().Err(err).Str("task_id", taskID).Msg("Cannot subscribe to task progress")
		return fmt.Errorf("subscribe %s: %w", taskID, err)
	}

	sub := &subscription{taskID: taskID}
	sub.active.Store(true)

	if err := r.attach(ctx, sub, callbacks); err != nil {
		sub.active.Store(false)
		r.detach(sub)
		return fmt.Errorf("subscribe %s: %w", taskID, err)
	}

	r.mu.Lock()
	r.entries[taskID] = sub
	r.mu.Unlock()

	r.channel.Emit(models.EventJoinTaskProgress, models.RoomRequest{TaskID: taskID})

	r.logger.Debug().
		Str("task_id", taskID).
		Int("handlers", len(sub.bindings)).
		Msg("Subscribed to task progress")

	return nil
}

func (r *Registry) attach(ctx context.Context, sub *subscription, callbacks interfaces.SubscriptionCallbacks) error {
	if cb := callbacks.OnProgress; cb != nil {
		if err := r.bind(ctx, sub, models.EventProgress, func(e models.Event) {
			if event, ok := e.(models.ProgressEvent); ok {
				cb(event)
			}
		}); err != nil {
			return err
		}
	}

	if cb := callbacks.OnJoined; cb != nil {
		if err := r.bind(ctx, sub, models.EventJoined, func(e models.Event) {
			if event, ok := e.(models.JoinedEvent); ok {
				cb(event)
			}
		}); err != nil {
			return err
		}
	}

	if cb := callbacks.OnStatus; cb != nil {
		if err := r.bind(ctx, sub, models.EventTaskStatus, func(e models.Event) {
			if event, ok := e.(models.TaskStatusEvent); ok {
				cb(event)
			}
		}); err != nil {
			return err
		}
	}

	return nil
}

// bind attaches handler for event, filtered to sub's task id and live only while sub is active
func (r *Registry) bind(ctx context.Context, sub *subscription, event string, handler interfaces.EventHandler) error {
	id, err := r.channel.On(ctx, event, func(e models.Event) {
		if !sub.active.Load() || e.EventTaskID() != sub.taskID {
			return
		}
		handler(e)
	})
	if err != nil {
		return err
	}
	sub.bindings = append(sub.bindings, binding{event: event, id: id})
	return nil
}

// Unsubscribe tells the server to leave the task room when connected, detaches the
// recorded handlers and removes the entry whether or not the channel is up.
func (r *Registry) Unsubscribe(taskID string) {
	r.mu.Lock()
	sub, ok := r.entries[taskID]
	delete(r.entries, taskID)
	r.mu.Unlock()

	if !ok {
		return
	}

	sub.active.Store(false)

	if r.channel.IsConnected() {
		r.channel.Emit(models.EventLeaveTaskProgress, models.RoomRequest{TaskID: taskID})
	}

	r.detach(sub)

	r.logger.Debug().Str("task_id", taskID).Msg("Unsubscribed from task progress")
}

func (r *Registry) detach(sub *subscription) {
	for _, b := range sub.bindings {
		r.channel.Off(b.event, b.id)
	}
	sub.bindings = nil
}

// Has reports whether a subscription exists for taskID
func (r *Registry) Has(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[taskID]
	return ok
}

// Count returns the number of tracked subscriptions
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// TaskIDs lists the tracked task ids
func (r *Registry) TaskIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// lockTask serializes Subscribe calls for one task id; different ids proceed independently
func (r *Registry) lockTask(taskID string) func() {
	r.locksMu.Lock()
	lock, ok := r.locks[taskID]
	if !ok {
		lock = &taskLock{}
		r.locks[taskID] = lock
	}
	lock.refs++
	r.locksMu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		r.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, taskID)
		}
		r.locksMu.Unlock()
	}
}
