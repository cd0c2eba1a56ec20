package channel

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

// ErrConnClosed is returned by a closed MemoryConn
var ErrConnClosed = errors.New("memory connection closed")

// MemoryTransport is an in-process transport. Each Dial yields a MemoryConn whose
// server side is driven through Push and observed through Sent or the Responder hook.
type MemoryTransport struct {
	mu        sync.Mutex
	dials     int
	dialErr   error
	gate      chan struct{}
	conns     []*MemoryConn
	responder func(conn *MemoryConn, env models.Envelope)
}

// NewMemoryTransport creates an in-process transport that accepts every dial
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

// FailDials makes subsequent dials fail with err; nil restores success
func (t *MemoryTransport) FailDials(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

// HoldDials blocks subsequent dials until the returned release func is called
func (t *MemoryTransport) HoldDials() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if t.gate == gate {
				t.gate = nil
			}
			t.mu.Unlock()
			close(gate)
		})
	}
}

// SetResponder installs a server-side hook invoked for every frame a client writes
func (t *MemoryTransport) SetResponder(fn func(conn *MemoryConn, env models.Envelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
}

// Dial implements interfaces.Transport
func (t *MemoryTransport) Dial(ctx context.Context) (interfaces.Conn, error) {
	t.mu.Lock()
	t.dials++
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dialErr != nil {
		return nil, t.dialErr
	}

	conn := &MemoryConn{
		transport: t,
		inbound:   make(chan models.Envelope, 256),
		closed:    make(chan struct{}),
	}
	t.conns = append(t.conns, conn)
	return conn, nil
}

// Dials returns the number of dial attempts
func (t *MemoryTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Current returns the most recently dialed connection, or nil
func (t *MemoryTransport) Current() *MemoryConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func (t *MemoryTransport) respond(conn *MemoryConn, env models.Envelope) {
	t.mu.Lock()
	fn := t.responder
	t.mu.Unlock()
	if fn != nil {
		fn(conn, env)
	}
}

// MemoryConn is one in-process transport handle
type MemoryConn struct {
	transport *MemoryTransport
	inbound   chan models.Envelope
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent []models.Envelope
}

// ReadEnvelope blocks until the server side pushes a frame or the connection closes
func (c *MemoryConn) ReadEnvelope() (models.Envelope, error) {
	select {
	case env := <-c.inbound:
		return env, nil
	case <-c.closed:
		return models.Envelope{}, io.EOF
	}
}

// WriteEnvelope records the frame and hands it to the transport responder
func (c *MemoryConn) WriteEnvelope(env models.Envelope) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()

	c.transport.respond(c, env)
	return nil
}

// Close ends the connection; pending reads return io.EOF
func (c *MemoryConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// Push delivers an event from the server side
func (c *MemoryConn) Push(event string, data interface{}) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	select {
	case c.inbound <- env:
		return nil
	case <-c.closed:
		return ErrConnClosed
	}
}

// Sent returns a copy of every frame the client wrote
func (c *MemoryConn) Sent() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentEvents returns the event names the client wrote, in order
func (c *MemoryConn) SentEvents() []string {
	sent := c.Sent()
	names := make([]string, 0, len(sent))
	for _, env := range sent {
		names = append(names, env.Event)
	}
	return names
}

// Closed reports whether the connection has been closed
func (c *MemoryConn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
