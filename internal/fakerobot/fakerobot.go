// Package fakerobot provides an in-process websocket peer that stands
// in for the control software during tests. It speaks just enough of
// the protocol to initialize devices, command speeds, and collect the
// bridge's reports.
package fakerobot

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/subsystemsim/halbridge/pkg/wire"
)

// Peer is a scripted simulation peer. It accepts any number of
// sequential connections, mirroring control software that restarts.
type Peer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	conn        *websocket.Conn
	connections int
	connCh      chan struct{}

	inbound chan *wire.Message
}

// NewPeer starts a peer listening on an ephemeral port.
func NewPeer() *Peer {
	p := &Peer{
		connCh:  make(chan struct{}, 16),
		inbound: make(chan *wire.Message, 256),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/wpilibws", p.handle)
	p.srv = httptest.NewServer(mux)
	return p
}

// URL returns the websocket endpoint the bridge should dial.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http") + "/wpilibws"
}

func (p *Peer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p.mu.Lock()
	p.conn = conn
	p.connections++
	p.mu.Unlock()

	select {
	case p.connCh <- struct{}{}:
	default:
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := wire.DecodeMessage(data)
		if err != nil {
			continue
		}
		select {
		case p.inbound <- msg:
		default:
		}
	}
}

// WaitConnected blocks until the bridge connects or the timeout expires.
func (p *Peer) WaitConnected(timeout time.Duration) error {
	select {
	case <-p.connCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no connection within %v", timeout)
	}
}

// Connections returns the number of connections accepted so far.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connections
}

// Send sends a raw message to the bridge over the current connection.
func (p *Peer) Send(msg *wire.Message) error {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Init tells the bridge the peer has constructed a virtual device.
func (p *Peer) Init(deviceType wire.DeviceType, device string) error {
	return p.Send(&wire.Message{
		Type:   deviceType,
		Device: device,
		Data:   map[string]any{wire.CommandKey(wire.FieldInit): true},
	})
}

// CommandSpeed sends a normalized speed command for an actuator.
func (p *Peer) CommandSpeed(device string, speed float64) error {
	return p.Send(&wire.Message{
		Type:   wire.DeviceTypePWM,
		Device: device,
		Data:   map[string]any{wire.CommandKey(wire.FieldSpeed): speed},
	})
}

// Reports returns the channel of messages received from the bridge.
func (p *Peer) Reports() <-chan *wire.Message {
	return p.inbound
}

// DropConnection closes the current connection without shutting the
// peer down, simulating a control-software restart.
func (p *Peer) DropConnection() {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close shuts the peer down.
func (p *Peer) Close() {
	p.DropConnection()
	p.srv.Close()
}
