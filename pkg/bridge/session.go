package bridge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/subsystemsim/halbridge/pkg/log"
	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/physics"
	"github.com/subsystemsim/halbridge/pkg/registry"
	"github.com/subsystemsim/halbridge/pkg/transport"
	"github.com/subsystemsim/halbridge/pkg/wire"
)

// Session states.
type SessionState int

const (
	// StateWaitingForConnection indicates the peer has not connected yet.
	StateWaitingForConnection SessionState = iota

	// StateConnected indicates the transport is up but no device has
	// been initialized by the peer.
	StateConnected

	// StateStreaming indicates at least one device is initialized and
	// reports are flowing.
	StateStreaming

	// StateClosed indicates the session has ended. Sessions are not
	// reused; reconnection starts a fresh one.
	StateClosed
)

// String returns the session state name.
func (s SessionState) String() string {
	switch s {
	case StateWaitingForConnection:
		return "WaitingForConnection"
	case StateConnected:
		return "Connected"
	case StateStreaming:
		return "Streaming"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// stationaryVelocity is the joint speed below which a sensor reports
// the stationary period sentinel instead of 1/frequency.
const stationaryVelocity = 1e-3

// stationaryPeriod is the period reported for a stationary joint.
const stationaryPeriod = 1.0

// inboundBuffer bounds the command queue between the transport read
// goroutine and the synchronization loop.
const inboundBuffer = 256

// frameDataLimit caps the raw frame bytes carried in a transport-layer
// log event. Protocol frames are small; anything larger is truncated.
const frameDataLimit = 512

// Sender sends an encoded frame to the peer.
type Sender interface {
	Send(data []byte) error
}

// Session is one connection's worth of bridge state. The registry and
// oracle are owned exclusively by the synchronization loop; the
// transport read goroutine only feeds the bounded inbound queue.
type Session struct {
	id     string
	desc   *mechanism.Description
	reg    *registry.Registry
	oracle physics.Oracle
	logger log.Logger

	mu         sync.Mutex
	sender     Sender
	remoteAddr string

	state atomic.Int32

	inbound chan wire.Event

	failOnce sync.Once
	failed   chan struct{}
	failErr  error
}

// NewSession creates a session over a fresh registry and oracle.
// The sender is attached separately once the transport exists.
func NewSession(desc *mechanism.Description, reg *registry.Registry, oracle physics.Oracle, logger log.Logger) *Session {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	s := &Session{
		id:      uuid.NewString(),
		desc:    desc,
		reg:     reg,
		oracle:  oracle,
		logger:  logger,
		inbound: make(chan wire.Event, inboundBuffer),
		failed:  make(chan struct{}),
	}
	s.state.Store(int32(StateWaitingForConnection))
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// AttachSender binds the outbound transport. Must be called before Run.
func (s *Session) AttachSender(sender Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// SetRemoteAddr records the peer address for log events.
func (s *Session) SetRemoteAddr(addr string) {
	s.mu.Lock()
	s.remoteAddr = addr
	s.mu.Unlock()
}

func (s *Session) remote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// Fail ends the session with the given error. The first call wins;
// later calls are ignored. Safe from any goroutine.
func (s *Session) Fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
	})
}

// OnMessage decodes an inbound frame and queues its command events.
// Called from the transport read goroutine. Malformed frames are
// logged and dropped; they never end the session.
func (s *Session) OnMessage(data []byte) {
	s.logFrame(log.DirectionIn, data)

	msg, err := wire.DecodeMessage(data)
	if err != nil {
		s.logError(log.LayerWire, err, "decode inbound frame", false)
		return
	}
	events, err := wire.Events(msg)
	if err != nil {
		s.logError(log.LayerWire, err, "extract command events", false)
		return
	}

	s.logMessage(log.DirectionIn, msg)

	for _, ev := range events {
		select {
		case s.inbound <- ev:
		default:
			// Queue full; the peer is far ahead of the loop. Dropping
			// a stale command is safer than blocking the reader.
			s.logError(log.LayerWire, fmt.Errorf("inbound queue full, dropping %s for %s %s", ev.Kind, ev.Type, ev.Device), "queue command", false)
		}
	}
}

// OnStateChange tracks the transport state.
// Called from the transport's goroutines.
func (s *Session) OnStateChange(oldState, newState transport.ConnectionState) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		RemoteAddr: s.remote(),
		Mechanism:  s.desc.Name,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState.String(),
			NewState: newState.String(),
		},
	})

	if newState == transport.StateConnected && s.State() == StateWaitingForConnection {
		s.setState(StateConnected, "transport connected")
	}
	if newState == transport.StateDisconnected {
		s.Fail(nil)
	}
}

// OnError records a transport error and ends the session. A normal
// peer close is an orderly end; everything else is kept as the
// session's result so the caller can tell a dead transport from a
// clean shutdown.
func (s *Session) OnError(err error) {
	if errors.Is(err, transport.ErrConnectionClosed) {
		s.logError(log.LayerTransport, err, "transport", false)
		s.Fail(nil)
		return
	}
	s.logError(log.LayerTransport, err, "transport", true)
	s.Fail(err)
}

// Run executes the synchronization loop at the mechanism's tick rate
// until the context is cancelled, the transport fails, or a fatal
// mechanism inconsistency is found. It returns nil for orderly ends
// (cancellation, clean peer close); a failed transport or a fatal
// inconsistency is returned to the caller.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.desc.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer s.setState(StateClosed, "session ended")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.failed:
			return s.failErr
		case <-ticker.C:
			if err := s.step(interval); err != nil {
				s.logError(log.LayerLoop, err, "synchronization tick", true)
				return err
			}
		}
	}
}

// step runs one synchronization tick: drain queued commands, convert
// commands to torque, advance the simulation once, then report changed
// sensor state.
func (s *Session) step(dt time.Duration) error {
	s.drainCommands()

	if err := s.applyTorques(); err != nil {
		return err
	}

	if err := s.oracle.StepSimulation(dt); err != nil {
		return fmt.Errorf("%w: step failed: %v", ErrInconsistentMechanism, err)
	}

	return s.publishReports()
}

// drainCommands applies all queued peer commands in arrival order.
func (s *Session) drainCommands() {
	for {
		select {
		case ev := <-s.inbound:
			s.applyCommand(ev)
		default:
			return
		}
	}
}

func (s *Session) applyCommand(ev wire.Event) {
	role, _ := wire.RoleOf(ev.Type)

	switch ev.Kind {
	case wire.EventInit:
		if !ev.Bool {
			return
		}
		if err := s.reg.MarkInitialized(role, ev.Device); err != nil {
			// The peer constructed a device this mechanism does not
			// model. Not fatal; its commands are simply ignored.
			s.logError(log.LayerLoop, err, "init", false)
			return
		}
		if s.State() == StateConnected {
			s.setState(StateStreaming, "first device initialized")
		}

	case wire.EventSpeed:
		if err := s.reg.RecordCommand(role, ev.Device, wire.FieldSpeed, ev.Value); err != nil {
			s.logError(log.LayerLoop, err, "speed command", false)
		}
	}
}

// applyTorques converts stored actuator commands to joint torques.
// A zero command still brakes the joint through back-EMF.
func (s *Session) applyTorques() error {
	for _, d := range s.reg.Actuators() {
		voltage := d.Command(wire.FieldSpeed) * s.desc.BusVoltage
		if d.Inverted() {
			voltage = -voltage
		}

		jointID := d.Joint().ID
		_, velocity, err := s.oracle.JointState(jointID)
		if err != nil {
			return fmt.Errorf("%w: actuator %q: %v", ErrInconsistentMechanism, d.ProtocolID(), err)
		}

		torque, err := d.Motor().Torque(voltage, velocity, d.GearRatio())
		if err != nil {
			return fmt.Errorf("%w: actuator %q: %v", ErrInconsistentMechanism, d.ProtocolID(), err)
		}

		if err := s.oracle.SetJointTorque(jointID, torque); err != nil {
			return fmt.Errorf("%w: actuator %q: %v", ErrInconsistentMechanism, d.ProtocolID(), err)
		}
	}
	return nil
}

// publishReports reads sensor state, converts it to wire units, and
// sends a report per device containing only the fields that changed.
func (s *Session) publishReports() error {
	for _, d := range s.reg.Sensors() {
		position, velocity, err := s.oracle.JointState(d.Joint().ID)
		if err != nil {
			return fmt.Errorf("%w: sensor %q: %v", ErrInconsistentMechanism, d.ProtocolID(), err)
		}

		if d.Inverted() {
			position = -position
			velocity = -velocity
		}
		if d.Wrap() {
			position = physics.WrapAngle(position)
		}

		count := countTicks(position, d.TicksPerRevolution(), d.Offset())
		period := tickPeriod(velocity, d.TicksPerRevolution())

		fields := make(map[string]any, 2)
		if v, changed := d.ComputeDelta(wire.FieldCount, count); changed {
			fields[wire.FieldCount] = v
		}
		if v, changed := d.ComputeDelta(wire.FieldPeriod, period); changed {
			fields[wire.FieldPeriod] = v
		}

		msg := wire.Report(d.Type(), d.ProtocolID(), fields)
		if msg == nil {
			continue
		}

		data, err := wire.EncodeMessage(msg)
		if err != nil {
			s.logError(log.LayerWire, err, "encode report", false)
			continue
		}

		s.mu.Lock()
		sender := s.sender
		s.mu.Unlock()
		if sender == nil {
			continue
		}
		if err := sender.Send(data); err != nil {
			// A failed write means the transport is gone; let the
			// session end and the bridge redial.
			s.logError(log.LayerTransport, err, "send report", true)
			s.Fail(err)
			return nil
		}
		s.logFrame(log.DirectionOut, data)
		s.logMessage(log.DirectionOut, msg)
	}
	return nil
}

// countTicks converts a joint position in radians to encoder ticks.
func countTicks(position float64, ticksPerRev, offset int) int {
	revolutions := position / (2 * math.Pi)
	return int(math.Round(revolutions*float64(ticksPerRev))) + offset
}

// tickPeriod converts a joint velocity in rad/s to seconds per tick.
// Stationary joints report the sentinel period 1.0 rather than
// infinity, which JSON cannot carry.
func tickPeriod(velocity float64, ticksPerRev int) float64 {
	if math.Abs(velocity) <= stationaryVelocity {
		return stationaryPeriod
	}
	revPerSec := math.Abs(velocity) / (2 * math.Pi)
	return 1.0 / (revPerSec * float64(ticksPerRev))
}

func (s *Session) setState(newState SessionState, reason string) {
	oldState := SessionState(s.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  log.DirectionOut,
		Layer:      log.LayerLoop,
		Category:   log.CategoryState,
		RemoteAddr: s.remote(),
		Mechanism:  s.desc.Name,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: oldState.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}

// logFrame records the raw frame at the transport layer, truncating
// oversized payloads.
func (s *Session) logFrame(dir log.Direction, data []byte) {
	frame := &log.FrameEvent{Size: len(data)}
	if len(data) > frameDataLimit {
		frame.Data = append([]byte(nil), data[:frameDataLimit]...)
		frame.Truncated = true
	} else {
		frame.Data = append([]byte(nil), data...)
	}
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryMessage,
		RemoteAddr: s.remote(),
		Mechanism:  s.desc.Name,
		Frame:      frame,
	})
}

func (s *Session) logMessage(dir log.Direction, msg *wire.Message) {
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  dir,
		Layer:      log.LayerWire,
		Category:   log.CategoryMessage,
		RemoteAddr: s.remote(),
		Mechanism:  s.desc.Name,
		Message: &log.MessageEvent{
			DeviceType: msg.Type,
			Device:     msg.Device,
			Fields:     msg.Data,
		},
	})
}

func (s *Session) logError(layer log.Layer, err error, context string, fatal bool) {
	if err == nil {
		return
	}
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  log.DirectionIn,
		Layer:      layer,
		Category:   log.CategoryError,
		RemoteAddr: s.remote(),
		Mechanism:  s.desc.Name,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Fatal:   fatal,
			Context: context,
		},
	})
}

// Compile-time interface satisfaction check.
var _ transport.ConnectionHandler = (*Session)(nil)
