package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/subsystemsim/halbridge/pkg/log"
	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/physics"
	"github.com/subsystemsim/halbridge/pkg/registry"
	"github.com/subsystemsim/halbridge/pkg/transport"
	"github.com/subsystemsim/halbridge/pkg/wire"
)

const testMechanism = `
name: testrig
joints:
  - {id: spinner, kind: revolute-continuous, axis: [0, 0, 1]}
actuators:
  - {device: "0", joint: spinner, motor: neo, gearRatio: 10}
sensors:
  - {device: "0", joint: spinner, ticksPerRevolution: 2048, wrap: never}
`

// fakeSender records every frame the session sends.
type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeSender) messages(t *testing.T) []*wire.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var msgs []*wire.Message
	for _, frame := range f.frames {
		msg, err := wire.DecodeMessage(frame)
		if err != nil {
			t.Fatalf("session sent undecodable frame %q: %v", frame, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func newTestSession(t *testing.T, yaml string) (*Session, *fakeSender) {
	t.Helper()
	desc, err := mechanism.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	reg, err := registry.FromDescription(desc)
	if err != nil {
		t.Fatalf("FromDescription failed: %v", err)
	}
	sess := NewSession(desc, reg, physics.NewSimpleEngine(desc), log.NoopLogger{})
	sender := &fakeSender{}
	sess.AttachSender(sender)
	return sess, sender
}

func frame(t *testing.T, deviceType wire.DeviceType, device string, data map[string]any) []byte {
	t.Helper()
	raw, err := wire.EncodeMessage(&wire.Message{Type: deviceType, Device: device, Data: data})
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	return raw
}

const tick = 20 * time.Millisecond

func stepN(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.step(tick); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}
}

func TestSessionNoReportsBeforeInit(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	// Drive the joint without initializing the sensor.
	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<init": true, "<speed": 1.0}))
	stepN(t, sess, 50)

	if msgs := sender.messages(t); len(msgs) != 0 {
		t.Fatalf("uninitialized sensor published %d reports", len(msgs))
	}
}

func TestSessionInitThenStream(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<init": true}))
	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))
	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<speed": 0.5}))
	stepN(t, sess, 50)

	msgs := sender.messages(t)
	if len(msgs) == 0 {
		t.Fatal("expected sensor reports after init")
	}

	last := msgs[len(msgs)-1]
	if last.Type != wire.DeviceTypeEncoder || last.Device != "0" {
		t.Fatalf("report addressed to %s %s", last.Type, last.Device)
	}

	rawCount, ok := last.Data[wire.ReportKey(wire.FieldCount)]
	if !ok {
		// The final tick may be a period-only delta; find the last
		// message carrying a count.
		for i := len(msgs) - 1; i >= 0; i-- {
			if v, found := msgs[i].Data[wire.ReportKey(wire.FieldCount)]; found {
				rawCount, ok = v, true
				break
			}
		}
	}
	if !ok {
		t.Fatal("no report carried a count field")
	}
	count, isNum := rawCount.(float64) // JSON numbers decode as float64
	if !isNum || count <= 0 {
		t.Errorf("count = %v, want a positive tick count", rawCount)
	}
}

func TestSessionReportsOnlyDeltas(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	// Initialize but never command: the mechanism stays at rest.
	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))
	stepN(t, sess, 100)

	msgs := sender.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("stationary mechanism published %d reports, want 1 priming report", len(msgs))
	}

	data := msgs[0].Data
	if got := data[wire.ReportKey(wire.FieldCount)]; got != float64(0) {
		t.Errorf("priming count = %v, want 0", got)
	}
	if got := data[wire.ReportKey(wire.FieldPeriod)]; got != stationaryPeriod {
		t.Errorf("priming period = %v, want %v", got, stationaryPeriod)
	}
}

func TestSessionStateTransitions(t *testing.T) {
	sess, _ := newTestSession(t, testMechanism)

	if sess.State() != StateWaitingForConnection {
		t.Fatalf("initial state = %v", sess.State())
	}

	sess.setState(StateConnected, "test")
	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<init": true}))
	stepN(t, sess, 1)

	if sess.State() != StateStreaming {
		t.Errorf("state after first init = %v, want %v", sess.State(), StateStreaming)
	}
}

func TestSessionDropsMalformedFrames(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	sess.OnMessage([]byte(`{not json`))
	sess.OnMessage([]byte(`{"type":"Gyro","device":"0","data":{"<init":true}}`))
	sess.OnMessage([]byte(`{"type":"PWM","device":"0","data":{"<init":"yes"}}`))
	stepN(t, sess, 5)

	if msgs := sender.messages(t); len(msgs) != 0 {
		t.Errorf("malformed frames produced %d reports", len(msgs))
	}
	select {
	case <-sess.failed:
		t.Error("malformed frame ended the session")
	default:
	}
}

func TestSessionIgnoresUnknownDeviceInit(t *testing.T) {
	sess, _ := newTestSession(t, testMechanism)

	sess.OnMessage(frame(t, wire.DeviceTypePWM, "99", map[string]any{"<init": true}))
	stepN(t, sess, 1)

	select {
	case <-sess.failed:
		t.Error("unknown device init ended the session")
	default:
	}
}

func TestSessionSpeedReversesJoint(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<init": true}))
	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))

	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<speed": -0.5}))
	stepN(t, sess, 50)

	var lastCount float64
	found := false
	for _, m := range sender.messages(t) {
		if v, ok := m.Data[wire.ReportKey(wire.FieldCount)]; ok {
			lastCount = v.(float64)
			found = true
		}
	}
	if !found {
		t.Fatal("no count reported")
	}
	if lastCount >= 0 {
		t.Errorf("negative command produced count %v, want negative", lastCount)
	}
}

func TestSessionLastCommandWinsWithinTick(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)

	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<init": true}))
	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))

	// Several commands land between ticks; only the final one drives
	// the tick.
	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<speed": 1.0}))
	sess.OnMessage(frame(t, wire.DeviceTypePWM, "0", map[string]any{"<speed": 0.0}))
	stepN(t, sess, 50)

	var lastCount float64
	for _, m := range sender.messages(t) {
		if v, ok := m.Data[wire.ReportKey(wire.FieldCount)]; ok {
			lastCount = v.(float64)
		}
	}
	if lastCount != 0 {
		t.Errorf("count = %v, want 0 after overriding command with zero", lastCount)
	}
}

// limitedOracle simulates a mechanism missing one of the registry's
// joints.
type limitedOracle struct{}

func (limitedOracle) SetJointTorque(string, float64) error { return physics.ErrUnknownJoint }
func (limitedOracle) StepSimulation(time.Duration) error   { return nil }
func (limitedOracle) JointState(string) (float64, float64, error) {
	return 0, 0, physics.ErrUnknownJoint
}

func TestSessionInconsistentMechanismIsFatal(t *testing.T) {
	desc, err := mechanism.Parse([]byte(testMechanism))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	reg, err := registry.FromDescription(desc)
	if err != nil {
		t.Fatalf("FromDescription failed: %v", err)
	}

	sess := NewSession(desc, reg, limitedOracle{}, log.NoopLogger{})
	sess.AttachSender(&fakeSender{})

	err = sess.step(tick)
	if !errors.Is(err, ErrInconsistentMechanism) {
		t.Fatalf("expected ErrInconsistentMechanism, got %v", err)
	}
}

func TestSessionRunSurfacesTransportError(t *testing.T) {
	sess, _ := newTestSession(t, testMechanism)

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(context.Background())
	}()

	reset := errors.New("connection reset by peer")
	sess.OnError(reset)

	select {
	case err := <-done:
		if !errors.Is(err, reset) {
			t.Errorf("Run returned %v, want the transport error surfaced", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end after transport error")
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want %v", sess.State(), StateClosed)
	}
}

func TestSessionRunNilOnCleanPeerClose(t *testing.T) {
	sess, _ := newTestSession(t, testMechanism)

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(context.Background())
	}()

	sess.OnError(fmt.Errorf("%w: peer closed", transport.ErrConnectionClosed))

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil for a clean peer close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end after peer close")
	}
}

func TestSessionRunEndsOnContextCancel(t *testing.T) {
	sess, _ := newTestSession(t, testMechanism)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not end after cancellation")
	}
}

func TestSessionSendFailureEndsSession(t *testing.T) {
	sess, sender := newTestSession(t, testMechanism)
	sender.err = fmt.Errorf("broken pipe")

	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))
	if err := sess.step(tick); err != nil {
		t.Fatalf("step returned %v, want nil for send failures", err)
	}

	select {
	case <-sess.failed:
	default:
		t.Error("send failure did not end the session")
	}
}

// scriptedOracle reports whatever joint state the test sets, so
// position can be placed exactly where a check needs it.
type scriptedOracle struct {
	pos, vel float64
}

func (o *scriptedOracle) SetJointTorque(string, float64) error { return nil }
func (o *scriptedOracle) StepSimulation(time.Duration) error   { return nil }
func (o *scriptedOracle) JointState(string) (float64, float64, error) {
	return o.pos, o.vel, nil
}

const wrappedMechanism = `
name: turntable
joints:
  - {id: table, kind: revolute-continuous, axis: [0, 0, 1]}
sensors:
  - {device: "0", joint: table, ticksPerRevolution: 2048}
`

func TestSessionWrapsContinuousJointCounts(t *testing.T) {
	desc, err := mechanism.Parse([]byte(wrappedMechanism))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	reg, err := registry.FromDescription(desc)
	if err != nil {
		t.Fatalf("FromDescription failed: %v", err)
	}

	oracle := &scriptedOracle{}
	sess := NewSession(desc, reg, oracle, log.NoopLogger{})
	sender := &fakeSender{}
	sess.AttachSender(sender)

	sess.OnMessage(frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true}))

	// One tick just short of half a revolution, one just past it. The
	// continuous joint's angle wraps to (-pi, pi], so the count must
	// flip sign instead of growing past half the tick range.
	oracle.pos = math.Pi - 0.01
	stepN(t, sess, 1)
	oracle.pos = math.Pi + 0.01
	stepN(t, sess, 1)

	var counts []float64
	for _, m := range sender.messages(t) {
		if v, ok := m.Data[wire.ReportKey(wire.FieldCount)]; ok {
			counts = append(counts, v.(float64))
		}
	}
	if len(counts) != 2 {
		t.Fatalf("got %d counts, want 2", len(counts))
	}
	if counts[0] <= 0 {
		t.Fatalf("count before pi = %v, want positive", counts[0])
	}
	if counts[1] >= 0 {
		t.Errorf("count past pi = %v, want negative after wrap", counts[1])
	}
	for _, c := range counts {
		if math.Abs(c) > 1024 {
			t.Errorf("count %v exceeds half a revolution of ticks", c)
		}
	}
}

// captureLogger retains every event for inspection.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(event log.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureLogger) all() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

func TestSessionLogsTransportFrames(t *testing.T) {
	desc, err := mechanism.Parse([]byte(testMechanism))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	reg, err := registry.FromDescription(desc)
	if err != nil {
		t.Fatalf("FromDescription failed: %v", err)
	}

	logger := &captureLogger{}
	sess := NewSession(desc, reg, physics.NewSimpleEngine(desc), logger)
	sess.AttachSender(&fakeSender{})
	sess.SetRemoteAddr("127.0.0.1:3300")

	raw := frame(t, wire.DeviceTypeEncoder, "0", map[string]any{"<init": true})
	sess.OnMessage(raw)
	stepN(t, sess, 1)

	var inFrame, outFrame *log.Event
	for _, e := range logger.all() {
		if e.Frame == nil {
			continue
		}
		e := e
		switch e.Direction {
		case log.DirectionIn:
			inFrame = &e
		case log.DirectionOut:
			outFrame = &e
		}
	}

	if inFrame == nil {
		t.Fatal("no inbound frame event logged")
	}
	if inFrame.Layer != log.LayerTransport {
		t.Errorf("inbound frame layer = %v, want %v", inFrame.Layer, log.LayerTransport)
	}
	if inFrame.Frame.Size != len(raw) {
		t.Errorf("inbound frame size = %d, want %d", inFrame.Frame.Size, len(raw))
	}
	if inFrame.RemoteAddr != "127.0.0.1:3300" {
		t.Errorf("remote addr = %q, want the peer address", inFrame.RemoteAddr)
	}
	if inFrame.Frame.Truncated {
		t.Error("small frame marked truncated")
	}

	// The priming report after init must produce an outbound frame.
	if outFrame == nil {
		t.Fatal("no outbound frame event logged")
	}
	if outFrame.Frame.Size == 0 {
		t.Error("outbound frame has zero size")
	}
}

func TestCountTicks(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		ticks    int
		offset   int
		want     int
	}{
		{"zero", 0, 2048, 0, 0},
		{"one revolution", 2 * 3.141592653589793, 2048, 0, 2048},
		{"half revolution", 3.141592653589793, 2048, 0, 1024},
		{"negative", -3.141592653589793, 2048, 0, -1024},
		{"with offset", 0, 2048, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countTicks(tt.position, tt.ticks, tt.offset); got != tt.want {
				t.Errorf("countTicks(%v, %d, %d) = %d, want %d", tt.position, tt.ticks, tt.offset, got, tt.want)
			}
		})
	}
}

func TestTickPeriod(t *testing.T) {
	if got := tickPeriod(0, 2048); got != stationaryPeriod {
		t.Errorf("stationary period = %v, want %v", got, stationaryPeriod)
	}
	if got := tickPeriod(1e-4, 2048); got != stationaryPeriod {
		t.Errorf("near-stationary period = %v, want %v", got, stationaryPeriod)
	}

	// One revolution per second: period is 1/ticksPerRev.
	got := tickPeriod(2*3.141592653589793, 2048)
	want := 1.0 / 2048
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("period = %v, want %v", got, want)
	}

	// Sign of velocity does not matter.
	if tickPeriod(-2*3.141592653589793, 2048) != got {
		t.Error("period differs for reversed velocity")
	}
}

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state SessionState
		want  string
	}{
		{StateWaitingForConnection, "WaitingForConnection"},
		{StateConnected, "Connected"},
		{StateStreaming, "Streaming"},
		{StateClosed, "Closed"},
		{SessionState(42), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
