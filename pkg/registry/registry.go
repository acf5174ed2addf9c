package registry

import (
	"errors"
	"fmt"

	"github.com/subsystemsim/halbridge/pkg/mechanism"
	"github.com/subsystemsim/halbridge/pkg/motor"
	"github.com/subsystemsim/halbridge/pkg/wire"
)

// Registry errors.
var (
	ErrDuplicateDevice      = errors.New("duplicate device")
	ErrUnknownDevice        = errors.New("unknown device")
	ErrInvalidConfiguration = errors.New("invalid device configuration")
)

// deviceKey identifies a device. The same protocol ID may appear once
// per role: an actuator "0" and a sensor "0" are distinct devices.
type deviceKey struct {
	role wire.Role
	id   string
}

// Registry holds all devices for one session, in registration order.
type Registry struct {
	devices map[deviceKey]*Device
	order   []*Device
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{devices: make(map[deviceKey]*Device)}
}

// RegisterActuator adds an actuator device bound to a joint.
func (r *Registry) RegisterActuator(protocolID string, joint mechanism.Joint, m *motor.Motor, gearRatio float64, inverted bool) (*Device, error) {
	if protocolID == "" {
		return nil, fmt.Errorf("%w: empty protocol id", ErrInvalidConfiguration)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: actuator %q has no motor", ErrInvalidConfiguration, protocolID)
	}
	if gearRatio == 0 {
		return nil, fmt.Errorf("%w: actuator %q has zero gear ratio", ErrInvalidConfiguration, protocolID)
	}

	d := &Device{
		protocolID:    protocolID,
		deviceType:    wire.DeviceTypePWM,
		role:          wire.RoleActuator,
		joint:         joint,
		commands:      make(map[string]float64),
		lastPublished: make(map[string]any),
		motor:         m,
		gearRatio:     gearRatio,
		inverted:      inverted,
	}
	return d, r.add(d)
}

// RegisterSensor adds a sensor device bound to a joint.
func (r *Registry) RegisterSensor(protocolID string, joint mechanism.Joint, ticksPerRev, offset int, inverted, wrap bool) (*Device, error) {
	if protocolID == "" {
		return nil, fmt.Errorf("%w: empty protocol id", ErrInvalidConfiguration)
	}
	if ticksPerRev <= 0 {
		return nil, fmt.Errorf("%w: sensor %q has non-positive resolution", ErrInvalidConfiguration, protocolID)
	}

	d := &Device{
		protocolID:    protocolID,
		deviceType:    wire.DeviceTypeEncoder,
		role:          wire.RoleSensor,
		joint:         joint,
		commands:      make(map[string]float64),
		lastPublished: make(map[string]any),
		ticksPerRev:   ticksPerRev,
		offset:        offset,
		inverted:      inverted,
		wrap:          wrap,
	}
	return d, r.add(d)
}

func (r *Registry) add(d *Device) error {
	key := deviceKey{role: d.role, id: d.protocolID}
	if _, exists := r.devices[key]; exists {
		return fmt.Errorf("%w: %s %q", ErrDuplicateDevice, d.role, d.protocolID)
	}
	r.devices[key] = d
	r.order = append(r.order, d)
	return nil
}

// Lookup returns the device registered for a role and protocol ID.
func (r *Registry) Lookup(role wire.Role, protocolID string) (*Device, bool) {
	d, ok := r.devices[deviceKey{role: role, id: protocolID}]
	return d, ok
}

// MarkInitialized records the peer's init signal for a device.
// Idempotent: repeated init signals are not an error. Init signals for
// devices this bridge does not model return ErrUnknownDevice so the
// caller can log them.
func (r *Registry) MarkInitialized(role wire.Role, protocolID string) error {
	d, ok := r.Lookup(role, protocolID)
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownDevice, role, protocolID)
	}
	d.initialized = true
	return nil
}

// RecordCommand stores the latest commanded value for an actuator
// field. It does not itself move the joint; the synchronization loop
// converts stored commands to torque on the next tick.
func (r *Registry) RecordCommand(role wire.Role, protocolID, field string, value float64) error {
	d, ok := r.Lookup(role, protocolID)
	if !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownDevice, role, protocolID)
	}
	d.commands[field] = value
	return nil
}

// Actuators returns all actuator devices in registration order.
func (r *Registry) Actuators() []*Device {
	return r.byRole(wire.RoleActuator)
}

// Sensors returns all sensor devices in registration order.
func (r *Registry) Sensors() []*Device {
	return r.byRole(wire.RoleSensor)
}

func (r *Registry) byRole(role wire.Role) []*Device {
	var result []*Device
	for _, d := range r.order {
		if d.role == role {
			result = append(result, d)
		}
	}
	return result
}

// Len returns the total number of registered devices.
func (r *Registry) Len() int {
	return len(r.order)
}

// FromDescription builds a registry from a validated mechanism
// description, constructing motor models from the catalog.
func FromDescription(desc *mechanism.Description) (*Registry, error) {
	r := New()

	for _, a := range desc.Actuators {
		joint, ok := desc.JointByID(a.Joint)
		if !ok {
			return nil, fmt.Errorf("%w: actuator %q references unknown joint %q", ErrInvalidConfiguration, a.Device, a.Joint)
		}
		spec, err := motor.LookupSpec(a.Motor)
		if err != nil {
			return nil, fmt.Errorf("actuator %q: %w", a.Device, err)
		}
		m, err := motor.New(spec)
		if err != nil {
			return nil, fmt.Errorf("actuator %q: %w", a.Device, err)
		}
		if _, err := r.RegisterActuator(a.Device, joint, m, a.GearRatio, a.Inverted); err != nil {
			return nil, err
		}
	}

	for _, s := range desc.Sensors {
		joint, ok := desc.JointByID(s.Joint)
		if !ok {
			return nil, fmt.Errorf("%w: sensor %q references unknown joint %q", ErrInvalidConfiguration, s.Device, s.Joint)
		}
		if _, err := r.RegisterSensor(s.Device, joint, s.TicksPerRevolution, s.Offset, s.Inverted, s.ShouldWrap(joint.Kind)); err != nil {
			return nil, err
		}
	}

	return r, nil
}
