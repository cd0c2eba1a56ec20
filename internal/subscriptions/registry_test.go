package subscriptions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/channel"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

// MockChannel is a mock implementation of interfaces.Channel
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockChannel) On(ctx context.Context, event string, handler interfaces.EventHandler) (interfaces.HandlerID, error) {
	args := m.Called(ctx, event, handler)
	return args.Get(0).(interfaces.HandlerID), args.Error(1)
}

func (m *MockChannel) Off(event string, ids ...interfaces.HandlerID) {
	m.Called(event, ids)
}

func (m *MockChannel) Emit(event string, data interface{}) {
	m.Called(event, data)
}

func (m *MockChannel) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

type recorder struct {
	mu       sync.Mutex
	progress []float64
	joined   int
	statuses []models.TaskState
}

func (r *recorder) callbacks() interfaces.SubscriptionCallbacks {
	return interfaces.SubscriptionCallbacks{
		OnProgress: func(e models.ProgressEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, e.Progress)
		},
		OnJoined: func(e models.JoinedEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.joined++
		},
		OnStatus: func(e models.TaskStatusEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, e.State)
		},
	}
}

func (r *recorder) progressValues() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.progress))
	copy(out, r.progress)
	return out
}

func (r *recorder) sawProgress(value float64) bool {
	for _, v := range r.progressValues() {
		if v == value {
			return true
		}
	}
	return false
}

func newTestRegistry(t *testing.T) (*Registry, *channel.Manager, *channel.MemoryTransport) {
	t.Helper()
	logger := arbor.NewLogger()
	transport := channel.NewMemoryTransport()
	manager := channel.NewManager(transport, logger, time.Second)
	t.Cleanup(func() { manager.Close() })
	return NewRegistry(manager, logger), manager, transport
}

func TestRegistry_JoinEmittedAfterHandlersAttached(t *testing.T) {
	registry, manager, transport := newTestRegistry(t)

	var attachedAtJoin []int
	transport.SetResponder(func(conn *channel.MemoryConn, env models.Envelope) {
		if env.Event == models.EventJoinTaskProgress {
			attachedAtJoin = append(attachedAtJoin,
				manager.HandlerCount(models.EventProgress),
				manager.HandlerCount(models.EventJoined),
				manager.HandlerCount(models.EventTaskStatus))
		}
	})

	rec := &recorder{}
	require.NoError(t, registry.Subscribe(context.Background(), "abc123", rec.callbacks()))

	assert.Equal(t, []int{1, 1, 1}, attachedAtJoin)
	assert.True(t, registry.Has("abc123"))
	assert.Equal(t, []string{models.EventJoinTaskProgress}, transport.Current().SentEvents())
	assert.JSONEq(t, `{"task_id":"abc123"}`, string(transport.Current().Sent()[0].Data))
}

func TestRegistry_ResubscribeDeliversOnce(t *testing.T) {
	registry, manager, transport := newTestRegistry(t)

	rec := &recorder{}
	require.NoError(t, registry.Subscribe(context.Background(), "abc123", rec.callbacks()))
	require.NoError(t, registry.Subscribe(context.Background(), "abc123", rec.callbacks()))

	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, 1, manager.HandlerCount(models.EventProgress))
	assert.Equal(t, 1, transport.Dials())
	assert.Equal(t,
		[]string{models.EventJoinTaskProgress, models.EventLeaveTaskProgress, models.EventJoinTaskProgress},
		transport.Current().SentEvents())

	conn := transport.Current()
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "abc123", Progress: 42}))
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "abc123", Progress: 99}))

	require.Eventually(t, func() bool { return rec.sawProgress(99) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{42, 99}, rec.progressValues())
}

func TestRegistry_ConcurrentSubscribeLeavesOneHandlerSet(t *testing.T) {
	registry, manager, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := &recorder{}
			assert.NoError(t, registry.Subscribe(context.Background(), "abc123", rec.callbacks()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, 1, manager.HandlerCount(models.EventProgress))
	assert.Equal(t, 1, manager.HandlerCount(models.EventTaskStatus))
}

func TestRegistry_IgnoresEventsForOtherTasks(t *testing.T) {
	registry, _, transport := newTestRegistry(t)

	first := &recorder{}
	second := &recorder{}
	require.NoError(t, registry.Subscribe(context.Background(), "A", first.callbacks()))
	require.NoError(t, registry.Subscribe(context.Background(), "B", second.callbacks()))

	conn := transport.Current()
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "B", Progress: 10}))
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "A", Progress: 20}))

	require.Eventually(t, func() bool { return first.sawProgress(20) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{20}, first.progressValues())
	assert.Equal(t, []float64{10}, second.progressValues())
}

func TestRegistry_UnsubscribeStopsDelivery(t *testing.T) {
	registry, manager, transport := newTestRegistry(t)

	stale := &recorder{}
	live := &recorder{}
	require.NoError(t, registry.Subscribe(context.Background(), "A", stale.callbacks()))
	require.NoError(t, registry.Subscribe(context.Background(), "B", live.callbacks()))

	registry.Unsubscribe("A")
	assert.False(t, registry.Has("A"))
	assert.True(t, registry.Has("B"))
	assert.Equal(t, 1, manager.HandlerCount(models.EventProgress))
	assert.Contains(t, transport.Current().SentEvents(), models.EventLeaveTaskProgress)

	conn := transport.Current()
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "A", Progress: 50}))
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "B", Progress: 60}))

	require.Eventually(t, func() bool { return live.sawProgress(60) }, time.Second, 5*time.Millisecond)
	assert.Empty(t, stale.progressValues())

	// Unknown id is a no-op
	registry.Unsubscribe("missing")
}

func TestRegistry_StatusAndJoinedCallbacks(t *testing.T) {
	registry, _, transport := newTestRegistry(t)

	rec := &recorder{}
	require.NoError(t, registry.Subscribe(context.Background(), "abc123", rec.callbacks()))

	conn := transport.Current()
	require.NoError(t, conn.Push(models.EventJoined, models.JoinedEvent{TaskID: "abc123"}))
	require.NoError(t, conn.Push(models.EventTaskStatus, map[string]string{"task_id": "abc123", "state": "failure", "status": "Ошибка"}))
	require.NoError(t, conn.Push(models.EventProgress, models.ProgressEvent{TaskID: "abc123", Progress: 1}))

	require.Eventually(t, func() bool { return rec.sawProgress(1) }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.joined)
	assert.Equal(t, []models.TaskState{models.TaskStateFailure}, rec.statuses)
}

func TestRegistry_OnlySuppliedCallbacksAttached(t *testing.T) {
	registry, manager, _ := newTestRegistry(t)

	err := registry.Subscribe(context.Background(), "abc123", interfaces.SubscriptionCallbacks{
		OnProgress: func(models.ProgressEvent) {},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, manager.HandlerCount(models.EventProgress))
	assert.Equal(t, 0, manager.HandlerCount(models.EventJoined))
	assert.Equal(t, 0, manager.HandlerCount(models.EventTaskStatus))
}

func TestRegistry_ConnectFailureRecordsNothing(t *testing.T) {
	ch := new(MockChannel)
	ch.Mock.On("Connect", mock.Anything).Return(errors.New("handshake refused"))

	registry := NewRegistry(ch, arbor.NewLogger())
	err := registry.Subscribe(context.Background(), "abc123", (&recorder{}).callbacks())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake refused")
	assert.False(t, registry.Has("abc123"))
	ch.AssertNotCalled(t, "On", mock.Anything, mock.Anything, mock.Anything)
	ch.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestRegistry_UnsubscribeOfflineStillCleansUp(t *testing.T) {
	ch := new(MockChannel)
	ch.Mock.On("Connect", mock.Anything).Return(nil)
	ch.Mock.On("On", mock.Anything, models.EventProgress, mock.Anything).Return(interfaces.HandlerID(1), nil)
	ch.Mock.On("On", mock.Anything, models.EventJoined, mock.Anything).Return(interfaces.HandlerID(2), nil)
	ch.Mock.On("On", mock.Anything, models.EventTaskStatus, mock.Anything).Return(interfaces.HandlerID(3), nil)
	ch.Mock.On("Emit", models.EventJoinTaskProgress, models.RoomRequest{TaskID: "abc123"}).Return()
	ch.Mock.On("IsConnected").Return(false)
	ch.Mock.On("Off", mock.Anything, mock.Anything).Return()

	registry := NewRegistry(ch, arbor.NewLogger())
	require.NoError(t, registry.Subscribe(context.Background(), "abc123", (&recorder{}).callbacks()))

	registry.Unsubscribe("abc123")

	assert.False(t, registry.Has("abc123"))
	ch.AssertNotCalled(t, "Emit", models.EventLeaveTaskProgress, mock.Anything)
	ch.AssertCalled(t, "Off", models.EventProgress, []interfaces.HandlerID{1})
	ch.AssertCalled(t, "Off", models.EventJoined, []interfaces.HandlerID{2})
	ch.AssertCalled(t, "Off", models.EventTaskStatus, []interfaces.HandlerID{3})
}

func TestRegistry_RejectsEmptyTaskID(t *testing.T) {
	registry, _, transport := newTestRegistry(t)
	assert.ErrorIs(t, registry.Subscribe(context.Background(), "", (&recorder{}).callbacks()), ErrEmptyTaskID)
	assert.Equal(t, 0, transport.Dials())
}
