// Package channel owns the single bidirectional event connection of a client process.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
	"golang.org/x/sync/singleflight"
)

// ErrNilHandler is returned by On when no handler is supplied
var ErrNilHandler = errors.New("channel handler cannot be nil")

// ErrClosedDuringDial is returned when Close runs while a dial is in flight
var ErrClosedDuringDial = errors.New("channel closed during handshake")

const defaultHandshakeTimeout = 10 * time.Second

type binding struct {
	id      interfaces.HandlerID
	handler interfaces.EventHandler
}

// Manager implements interfaces.Channel on top of a Transport.
// At most one transport handle is live at a time; concurrent Connect calls share one dial.
type Manager struct {
	transport        interfaces.Transport
	logger           arbor.ILogger
	handshakeTimeout time.Duration

	connectGroup singleflight.Group

	mu        sync.RWMutex
	conn      interfaces.Conn
	connected bool
	closes    uint64
	handlers  map[string][]binding

	writeMu sync.Mutex
	nextID  uint64
	dials   int64
}

// NewManager creates a channel manager. Nothing is dialed until the first Connect.
func NewManager(transport interfaces.Transport, logger arbor.ILogger, handshakeTimeout time.Duration) *Manager {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Manager{
		transport:        transport,
		logger:           logger,
		handshakeTimeout: handshakeTimeout,
		handlers:         make(map[string][]binding),
	}
}

// Connect resolves immediately when connected, joins an in-flight attempt when one exists,
// and otherwise dials. The shared attempt is bounded by the handshake timeout rather than by
// any single caller's ctx; ctx only bounds how long this caller waits.
func (m *Manager) Connect(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	result := m.connectGroup.DoChan("connect", func() (interface{}, error) {
		return nil, m.dial()
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) dial() error {
	if m.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.handshakeTimeout)
	defer cancel()

	m.mu.RLock()
	closes := m.closes
	m.mu.RUnlock()

	atomic.AddInt64(&m.dials, 1)
	conn, err := m.transport.Dial(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Channel connection error")
		return fmt.Errorf("channel handshake failed: %w", err)
	}

	m.mu.Lock()
	if m.closes != closes {
		m.mu.Unlock()
		conn.Close()
		m.logger.Debug().Msg("Channel closed during handshake - dropping connection")
		return ErrClosedDuringDial
	}
	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	m.logger.Info().Msg("Channel connected")

	common.SafeGo(m.logger, "channel-read-loop", func() {
		m.readLoop(conn)
	})

	return nil
}

// readLoop is the only dispatcher: events are delivered sequentially in arrival order
func (m *Manager) readLoop(conn interfaces.Conn) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				m.logger.Warn().Err(err).Msg("Dropping malformed channel frame")
				continue
			}
			m.handleDisconnect(conn, err)
			return
		}

		event, err := models.DecodeEvent(env)
		if err != nil {
			m.logger.Warn().Err(err).Str("event", env.Event).Msg("Dropping invalid channel event")
			continue
		}

		m.dispatch(env.Event, event)
	}
}

func (m *Manager) dispatch(name string, event models.Event) {
	m.mu.RLock()
	bindings := make([]binding, len(m.handlers[name]))
	copy(bindings, m.handlers[name])
	m.mu.RUnlock()

	for _, b := range bindings {
		m.invoke(name, b.handler, event)
	}
}

func (m *Manager) invoke(name string, handler interfaces.EventHandler, event models.Event) {
	defer common.Recover(m.logger, "channel-handler:"+name)
	handler(event)
}

func (m *Manager) handleDisconnect(conn interfaces.Conn, cause error) {
	m.mu.Lock()
	current := m.conn == conn
	if current {
		m.conn = nil
		m.connected = false
	}
	m.mu.Unlock()

	_ = conn.Close()

	if current {
		m.logger.Info().Str("cause", cause.Error()).Msg("Channel disconnected")
	}
}

// On connects if necessary, then attaches handler for event
func (m *Manager) On(ctx context.Context, event string, handler interfaces.EventHandler) (interfaces.HandlerID, error) {
	if handler == nil {
		return 0, ErrNilHandler
	}

	if err := m.Connect(ctx); err != nil {
		return 0, err
	}

	id := interfaces.HandlerID(atomic.AddUint64(&m.nextID, 1))

	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], binding{id: id, handler: handler})
	m.mu.Unlock()

	return id, nil
}

// Off detaches the listed handlers, or all handlers for event when none are listed
func (m *Manager) Off(event string, ids ...interfaces.HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ids) == 0 {
		delete(m.handlers, event)
		return
	}

	remove := make(map[interfaces.HandlerID]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := m.handlers[event][:0]
	for _, b := range m.handlers[event] {
		if !remove[b.id] {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

// Emit sends an event without waiting for delivery. Nothing is queued while disconnected.
func (m *Manager) Emit(event string, data interface{}) {
	m.mu.RLock()
	conn := m.conn
	connected := m.connected
	m.mu.RUnlock()

	if !connected || conn == nil {
		m.logger.Debug().Str("event", event).Msg("Channel not connected - emit dropped")
		return
	}

	env, err := models.NewEnvelope(event, data)
	if err != nil {
		m.logger.Warn().Err(err).Str("event", event).Msg("Failed to encode channel event")
		return
	}

	m.writeMu.Lock()
	err = conn.WriteEnvelope(env)
	m.writeMu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Str("event", event).Msg("Failed to emit channel event")
	}
}

// IsConnected reflects the current transport state
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.conn != nil
}

// HandlerCount returns the number of handlers attached for event
func (m *Manager) HandlerCount(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// DialCount returns how many transport handles have been requested
func (m *Manager) DialCount() int {
	return int(atomic.LoadInt64(&m.dials))
}

// Close drops the live transport handle, if any, and abandons an in-flight dial.
// Attached handlers are kept and a later Connect dials again.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closes++
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
