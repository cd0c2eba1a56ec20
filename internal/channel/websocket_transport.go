package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/models"
)

// ErrMalformedFrame marks a frame that could not be decoded; the connection stays usable
var ErrMalformedFrame = errors.New("malformed channel frame")

// WebSocketTransport dials the task progress hub over WebSocket
type WebSocketTransport struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// NewWebSocketTransport creates a transport for the given ws:// or wss:// URL
func NewWebSocketTransport(url string, handshakeTimeout, writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{
		url:    url,
		header: http.Header{},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		writeTimeout: writeTimeout,
	}
}

// Dial performs the WebSocket handshake
func (t *WebSocketTransport) Dial(ctx context.Context) (interfaces.Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return &wsConn{conn: conn, writeTimeout: t.writeTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func (c *wsConn) ReadEnvelope() (models.Envelope, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return models.Envelope{}, err
	}
	if messageType != websocket.TextMessage {
		return models.Envelope{}, fmt.Errorf("%w: unexpected message type %d", ErrMalformedFrame, messageType)
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

func (c *wsConn) WriteEnvelope(env models.Envelope) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(env)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}
