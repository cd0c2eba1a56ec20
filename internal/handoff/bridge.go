package handoff

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/interfaces"
)

const (
	DefaultMaxAttempts = 10
	DefaultInterval    = 100 * time.Millisecond
)

// Locator finds registered components by key; *Directory implements it
type Locator interface {
	Lookup(key string) (interface{}, bool)
}

// Bridge delivers a task id to whatever HandoffTarget is registered under its key,
// polling the locator a bounded number of times.
type Bridge struct {
	locator     Locator
	key         string
	maxAttempts int
	interval    time.Duration
	logger      arbor.ILogger
}

// NewBridge creates a bridge targeting the component registered under key
func NewBridge(locator Locator, key string, maxAttempts int, interval time.Duration, logger arbor.ILogger) *Bridge {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Bridge{
		locator:     locator,
		key:         key,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
	}
}

// Deliver starts delivery in the background and returns immediately.
// An empty task id is ignored. Exhausted attempts are not reported as an error.
func (b *Bridge) Deliver(ctx context.Context, taskID string) {
	if taskID == "" {
		return
	}
	common.SafeGo(b.logger, "handoff", func() {
		b.DeliverWait(ctx, taskID)
	})
}

// DeliverWait runs the delivery loop on the calling goroutine and reports whether a
// target accepted the id and how many lookups were made.
func (b *Bridge) DeliverWait(ctx context.Context, taskID string) (bool, int) {
	if taskID == "" {
		return false, 0
	}

	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if target, ok := b.target(); ok {
			if err := target.SetTaskID(ctx, taskID); err != nil {
				b.logger.Warn().Err(err).Str("task_id", taskID).Msg("Hand-off target could not start tracking")
			}
			b.logger.Debug().
				Str("task_id", taskID).
				Int("attempt", attempt).
				Msg("Task id handed off")
			return true, attempt
		}

		if attempt == b.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return false, attempt
		case <-time.After(b.interval):
		}
	}

	b.logger.Debug().
		Str("task_id", taskID).
		Int("attempts", b.maxAttempts).
		Msg("No hand-off target became ready - giving up")

	return false, b.maxAttempts
}

func (b *Bridge) target() (interfaces.HandoffTarget, bool) {
	component, ok := b.locator.Lookup(b.key)
	if !ok {
		return nil, false
	}
	target, ok := component.(interfaces.HandoffTarget)
	return target, ok
}
