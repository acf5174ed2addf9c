package registry

import (
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/motor"
	"github.com/subsystemsim/halbridge/pkg/wire"
)

// FloatEpsilon is the negligible-change threshold for float fields.
// Integer fields compare exactly.
const FloatEpsilon = 1e-6

// Device is one named protocol endpoint bound to exactly one joint.
type Device struct {
	protocolID string
	deviceType wire.DeviceType
	role       wire.Role
	joint      mechanism.Joint

	initialized   bool
	commands      map[string]float64
	lastPublished map[string]any

	// Actuator binding.
	motor     *motor.Motor
	gearRatio float64
	inverted  bool

	// Sensor binding.
	ticksPerRev int
	offset      int
	wrap        bool
}

// ProtocolID returns the opaque wire identifier.
func (d *Device) ProtocolID() string {
	return d.protocolID
}

// Type returns the wire device type.
func (d *Device) Type() wire.DeviceType {
	return d.deviceType
}

// Role returns the device role.
func (d *Device) Role() wire.Role {
	return d.role
}

// Joint returns the bound joint.
func (d *Device) Joint() mechanism.Joint {
	return d.joint
}

// Initialized reports whether the peer's init signal has been observed.
func (d *Device) Initialized() bool {
	return d.initialized
}

// Motor returns the actuator's motor model (nil for sensors).
func (d *Device) Motor() *motor.Motor {
	return d.motor
}

// GearRatio returns the actuator's gearbox reduction ratio.
func (d *Device) GearRatio() float64 {
	return d.gearRatio
}

// Inverted reports whether the device's sign convention is flipped.
func (d *Device) Inverted() bool {
	return d.inverted
}

// TicksPerRevolution returns the sensor's resolution.
func (d *Device) TicksPerRevolution() int {
	return d.ticksPerRev
}

// Offset returns the sensor's tick offset.
func (d *Device) Offset() int {
	return d.offset
}

// Wrap reports whether the sensor's position readings are wrapped.
func (d *Device) Wrap() bool {
	return d.wrap
}

// Command returns the latest recorded command for a field, or zero.
func (d *Device) Command(field string) float64 {
	return d.commands[field]
}

// ComputeDelta returns value if it should be published for the field:
// the device is publishable and the value differs from the last
// published one by more than a negligible epsilon (exact match for
// integers, 1e-6 for floats). lastPublished is updated only when a
// value is returned.
//
// For sensors this returns nothing while the device is uninitialized,
// regardless of value change. A field that has never been published
// always publishes its first value.
func (d *Device) ComputeDelta(field string, value any) (any, bool) {
	if d.role == wire.RoleSensor && !d.initialized {
		return nil, false
	}

	if last, seen := d.lastPublished[field]; seen && negligibleChange(last, value) {
		return nil, false
	}

	d.lastPublished[field] = value
	return value, true
}

// negligibleChange reports whether old and new are equal within the
// per-type epsilon. Values of differing types always count as changed.
func negligibleChange(old, new any) bool {
	switch o := old.(type) {
	case int:
		n, ok := new.(int)
		return ok && o == n
	case int64:
		n, ok := new.(int64)
		return ok && o == n
	case float64:
		n, ok := new.(float64)
		return ok && scalar.EqualWithinAbs(o, n, FloatEpsilon)
	case bool:
		n, ok := new.(bool)
		return ok && o == n
	default:
		return old == new
	}
}
