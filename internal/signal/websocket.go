package signal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsHandshakeTimeout bounds the initial dial
	wsHandshakeTimeout = 10 * time.Second
	// wsWriteTimeout bounds a single frame write
	wsWriteTimeout = 5 * time.Second
	// wsInboundBuffer absorbs bursts without stalling the read pump
	wsInboundBuffer = 64
)

// WebSocketChannel carries envelopes over a wss connection.
type WebSocketChannel struct {
	host string
	port int

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	inbound   chan Envelope
	lifecycle chan LifecycleEvent
}

// NewWebSocketChannel creates a channel for the given signaling host.
// The connection is not opened until Connect.
func NewWebSocketChannel(host string, port int) *WebSocketChannel {
	return &WebSocketChannel{
		host:      host,
		port:      port,
		inbound:   make(chan Envelope, wsInboundBuffer),
		lifecycle: make(chan LifecycleEvent, 4),
	}
}

// Connect dials the signaling endpoint and starts the read pump.
func (c *WebSocketChannel) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "wss", Host: fmt.Sprintf("%s:%d", c.host, c.port)}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("channel closed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.notify(LifecycleEvent{State: LifecycleConnected})
	go c.readPump(conn)

	slog.Debug("[Signal] Channel connected", "url", u.String())
	return nil
}

// Send writes an envelope to the socket. Writes are serialized; the
// gorilla connection allows only one concurrent writer.
func (c *WebSocketChannel) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("channel not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(env)
}

// Inbound returns the stream of received envelopes.
func (c *WebSocketChannel) Inbound() <-chan Envelope {
	return c.inbound
}

// Lifecycle returns the stream of connect/disconnect transitions.
func (c *WebSocketChannel) Lifecycle() <-chan LifecycleEvent {
	return c.lifecycle
}

// Close tears down the socket. Idempotent.
func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// Best-effort close frame; the read pump exits on the error.
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout),
		)
		return conn.Close()
	}
	return nil
}

func (c *WebSocketChannel) readPump(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				slog.Warn("[Signal] Read failed", "error", err)
				c.notify(LifecycleEvent{State: LifecycleDisconnected, Err: err})
			} else {
				c.notify(LifecycleEvent{State: LifecycleDisconnected})
			}
			return
		}
		c.inbound <- env
	}
}

func (c *WebSocketChannel) notify(ev LifecycleEvent) {
	select {
	case c.lifecycle <- ev:
	default:
		slog.Warn("[Signal] Lifecycle event dropped", "state", ev.State)
	}
}
