package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testHandler collects connection events for assertions.
type testHandler struct {
	mu       sync.Mutex
	messages [][]byte
	states   []ConnectionState
	errs     []error

	msgCh chan []byte
}

func newTestHandler() *testHandler {
	return &testHandler{msgCh: make(chan []byte, 16)}
}

func (h *testHandler) OnMessage(msg []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	select {
	case h.msgCh <- msg:
	default:
	}
}

func (h *testHandler) OnStateChange(oldState, newState ConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, newState)
}

func (h *testHandler) OnError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *testHandler) lastState() ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.states) == 0 {
		return StateDisconnected
	}
	return h.states[len(h.states)-1]
}

var testUpgrader = websocket.Upgrader{}

// echoServer upgrades and echoes every text frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestConnectionConnectAndEcho(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.ForceClose()

	if conn.State() != StateConnected {
		t.Fatalf("state = %v, want %v", conn.State(), StateConnected)
	}

	payload := []byte(`{"type":"PWM","device":"0","data":{"<init":true}}`)
	if err := conn.Send(payload); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-handler.msgCh:
		if string(msg) != string(payload) {
			t.Errorf("echo = %q, want %q", msg, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestConnectionDialFailure(t *testing.T) {
	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	err := conn.Connect(context.Background(), "ws://127.0.0.1:1/wpilibws")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state = %v, want %v", conn.State(), StateDisconnected)
	}
}

func TestConnectionSendBeforeConnect(t *testing.T) {
	conn := NewConnection(DefaultConnectionConfig(), newTestHandler())
	if err := conn.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionDoubleConnect(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.ForceClose()

	if err := conn.Connect(context.Background(), wsURL(srv)); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectionClose(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	handler := newTestHandler()
	config := DefaultConnectionConfig()
	config.CloseTimeout = time.Second
	conn := NewConnection(config, handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state = %v, want %v", conn.State(), StateDisconnected)
	}

	// Double close is a no-op.
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if err := conn.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after close: expected ErrNotConnected, got %v", err)
	}
}

func TestConnectionPeerClosed(t *testing.T) {
	// Server drops the connection after the first message.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()

	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := conn.Send([]byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn.State() == StateDisconnected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn.State() != StateDisconnected {
		t.Fatalf("connection did not transition to DISCONNECTED after peer close")
	}

	handler.mu.Lock()
	gotErr := len(handler.errs) > 0
	handler.mu.Unlock()
	if !gotErr {
		t.Error("expected OnError for peer-initiated close")
	}
}

func TestConnectionIgnoresBinaryFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02})
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		// Hold the connection open until the client leaves.
		conn.ReadMessage()
	}))
	defer srv.Close()

	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.ForceClose()

	select {
	case msg := <-handler.msgCh:
		if string(msg) != "hello" {
			t.Errorf("delivered %q, want text frame %q", msg, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for text frame")
	}

	handler.mu.Lock()
	count := len(handler.messages)
	handler.mu.Unlock()
	if count != 1 {
		t.Errorf("delivered %d messages, want 1 (binary frame skipped)", count)
	}
}

func TestConnectionStateTransitions(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	handler := newTestHandler()
	conn := NewConnection(DefaultConnectionConfig(), handler)

	if err := conn.Connect(context.Background(), wsURL(srv)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	conn.Close()

	handler.mu.Lock()
	states := append([]ConnectionState(nil), handler.states...)
	handler.mu.Unlock()

	want := []ConnectionState{StateConnecting, StateConnected, StateClosing, StateDisconnected}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state[%d] = %v, want %v", i, states[i], want[i])
		}
	}

	if handler.lastState() != StateDisconnected {
		t.Errorf("last state = %v, want %v", handler.lastState(), StateDisconnected)
	}
}
