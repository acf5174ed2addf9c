package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEndpoint is the websocket URI simulation peers listen on.
const DefaultEndpoint = "ws://localhost:3300/wpilibws"

// DefaultMaxMessageSize is the maximum accepted frame size in bytes.
const DefaultMaxMessageSize = 64 * 1024

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateClosing indicates graceful close in progress.
	StateClosing
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionConfig configures a websocket connection to the peer.
type ConnectionConfig struct {
	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize int64

	// HandshakeTimeout bounds the websocket dial (default: 5s).
	HandshakeTimeout time.Duration

	// WriteTimeout is the per-frame write deadline (default: 5s).
	WriteTimeout time.Duration

	// PingInterval is how often pings are sent (default: 10s).
	PingInterval time.Duration

	// PongTimeout is how long to wait for a pong before the
	// connection is considered dead (default: 2.5x PingInterval).
	PongTimeout time.Duration

	// CloseTimeout is the timeout for graceful close (default: 5s).
	CloseTimeout time.Duration
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxMessageSize:   DefaultMaxMessageSize,
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     10 * time.Second,
		PongTimeout:      25 * time.Second,
		CloseTimeout:     5 * time.Second,
	}
}

// ConnectionHandler handles connection events.
type ConnectionHandler interface {
	// OnMessage is called when a text frame is received.
	OnMessage(msg []byte)

	// OnStateChange is called when the connection state changes.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called when an error occurs.
	OnError(err error)
}

// Connection is a websocket connection to the simulation peer.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler

	conn *websocket.Conn

	state     atomic.Int32
	closeOnce sync.Once
	closeDone chan struct{}

	mu      sync.RWMutex
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewConnection creates a new connection (not yet connected).
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = config.PingInterval * 5 / 2
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = 5 * time.Second
	}

	c := &Connection{
		config:    config,
		handler:   handler,
		closeDone: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))

	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connect dials the peer's websocket endpoint.
func (c *Connection) Connect(ctx context.Context, uri string) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.notifyStateChange(StateDisconnected, StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.notifyStateChange(StateConnecting, StateDisconnected)
		return fmt.Errorf("dial %s: %w", uri, err)
	}

	conn.SetReadLimit(c.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.pingLoop()
	go c.readLoop()

	c.state.Store(int32(StateConnected))
	c.notifyStateChange(StateConnecting, StateConnected)

	return nil
}

// Send sends a text frame over the connection.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close gracefully closes the connection.
func (c *Connection) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		currentState := c.State()
		if currentState == StateDisconnected {
			return
		}

		c.state.Store(int32(StateClosing))
		c.notifyStateChange(currentState, StateClosing)

		// Send close frame; wait for the peer echo or timeout.
		c.writeMu.Lock()
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			closeErr = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		c.writeMu.Unlock()

		select {
		case <-c.closeDone:
		case <-time.After(c.config.CloseTimeout):
		}

		c.teardown(StateClosing)
	})

	return closeErr
}

// ForceClose immediately closes the connection without a close handshake.
func (c *Connection) ForceClose() {
	c.closeOnce.Do(func() {
		c.teardown(c.State())
	})
}

func (c *Connection) teardown(from ConnectionState) {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.state.Store(int32(StateDisconnected))
	if from != StateDisconnected {
		c.notifyStateChange(from, StateDisconnected)
	}
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// pingLoop keeps the connection alive. Missing pongs trip the read
// deadline in readLoop.
func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				c.writeMu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				if c.State() == StateClosing || c.ctx.Err() != nil {
					return
				}
				c.handler.OnError(fmt.Errorf("ping failed: %w", err))
				c.ForceClose()
				return
			}
		}
	}
}

// readLoop reads frames from the connection.
func (c *Connection) readLoop() {
	defer close(c.closeDone)

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() == StateClosing || c.ctx.Err() != nil {
				return // Expected during close
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handler.OnError(fmt.Errorf("%w: peer closed", ErrConnectionClosed))
			} else {
				c.handler.OnError(fmt.Errorf("read error: %w", err))
			}
			c.ForceClose()
			return
		}

		// The protocol is text-only JSON; other frame types are ignored.
		if msgType != websocket.TextMessage {
			continue
		}

		c.handler.OnMessage(data)
	}
}

// notifyStateChange notifies the handler of state changes.
func (c *Connection) notifyStateChange(oldState, newState ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(oldState, newState)
	}
}
