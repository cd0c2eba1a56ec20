package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

type fakeTarget struct {
	mu       sync.Mutex
	received []string
	err      error
}

func (f *fakeTarget) SetTaskID(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, taskID)
	return f.err
}

func (f *fakeTarget) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// readyOnCall exposes the target only from the Nth lookup onward
type readyOnCall struct {
	mu      sync.Mutex
	readyAt int
	calls   int
	lookups []time.Time
	target  *fakeTarget
}

func (r *readyOnCall) Lookup(key string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lookups = append(r.lookups, time.Now())
	if r.readyAt > 0 && r.calls >= r.readyAt {
		return r.target, true
	}
	return nil, false
}

func TestBridge_DeliversWhenTargetBecomesReady(t *testing.T) {
	for _, n := range []int{1, 4, 10} {
		locator := &readyOnCall{readyAt: n, target: &fakeTarget{}}
		bridge := NewBridge(locator, "page", 10, 5*time.Millisecond, arbor.NewLogger())

		delivered, attempts := bridge.DeliverWait(context.Background(), "abc123")

		assert.True(t, delivered, "ready on call %d", n)
		assert.Equal(t, n, attempts)
		assert.Equal(t, []string{"abc123"}, locator.target.ids())
	}
}

func TestBridge_GivesUpAfterExactlyTenAttempts(t *testing.T) {
	locator := &readyOnCall{}
	bridge := NewBridge(locator, "page", 0, 0, arbor.NewLogger())

	start := time.Now()
	delivered, attempts := bridge.DeliverWait(context.Background(), "abc123")
	elapsed := time.Since(start)

	assert.False(t, delivered)
	assert.Equal(t, 10, attempts)
	assert.Equal(t, 10, locator.calls)
	assert.GreaterOrEqual(t, elapsed, 9*DefaultInterval)

	for i := 1; i < len(locator.lookups); i++ {
		gap := locator.lookups[i].Sub(locator.lookups[i-1])
		assert.GreaterOrEqual(t, gap, 90*time.Millisecond, "lookup %d", i)
	}
}

func TestBridge_EmptyTaskIDIsNoop(t *testing.T) {
	locator := &readyOnCall{readyAt: 1, target: &fakeTarget{}}
	bridge := NewBridge(locator, "page", 10, time.Millisecond, arbor.NewLogger())

	delivered, attempts := bridge.DeliverWait(context.Background(), "")
	assert.False(t, delivered)
	assert.Equal(t, 0, attempts)

	bridge.Deliver(context.Background(), "")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, locator.calls)
}

func TestBridge_DeliverRunsInBackground(t *testing.T) {
	directory := NewDirectory()
	target := &fakeTarget{}
	bridge := NewBridge(directory, "page", 10, 10*time.Millisecond, arbor.NewLogger())

	bridge.Deliver(context.Background(), "late-task")

	// Target appears after delivery started
	time.Sleep(25 * time.Millisecond)
	directory.Register("page", target)

	require.Eventually(t, func() bool { return len(target.ids()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"late-task"}, target.ids())
}

func TestBridge_TargetErrorStillCountsAsDelivered(t *testing.T) {
	directory := NewDirectory()
	target := &fakeTarget{err: errors.New("connect failed")}
	directory.Register("page", target)

	bridge := NewBridge(directory, "page", 10, time.Millisecond, arbor.NewLogger())
	delivered, attempts := bridge.DeliverWait(context.Background(), "abc123")

	assert.True(t, delivered)
	assert.Equal(t, 1, attempts)
}

func TestBridge_IgnoresComponentsThatAreNotTargets(t *testing.T) {
	directory := NewDirectory()
	directory.Register("page", "not a target")

	bridge := NewBridge(directory, "page", 3, time.Millisecond, arbor.NewLogger())
	delivered, attempts := bridge.DeliverWait(context.Background(), "abc123")

	assert.False(t, delivered)
	assert.Equal(t, 3, attempts)
}

func TestBridge_StopsOnContextCancel(t *testing.T) {
	bridge := NewBridge(&readyOnCall{}, "page", 10, 50*time.Millisecond, arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	delivered, attempts := bridge.DeliverWait(ctx, "abc123")
	assert.False(t, delivered)
	assert.Equal(t, 1, attempts)
}

func TestDirectory_RegisterLookupUnregister(t *testing.T) {
	directory := NewDirectory()

	_, ok := directory.Lookup("page")
	assert.False(t, ok)

	directory.Register("page", 42)
	component, ok := directory.Lookup("page")
	require.True(t, ok)
	assert.Equal(t, 42, component)

	directory.Unregister("page")
	_, ok = directory.Lookup("page")
	assert.False(t, ok)
}
