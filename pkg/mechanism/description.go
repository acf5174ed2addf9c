package mechanism

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDescription reports a mechanism description that cannot be
// used to build a session. Setup aborts before any loop starts.
var ErrInvalidDescription = errors.New("invalid mechanism description")

// Defaults applied to absent description fields.
const (
	// DefaultBusVoltage converts normalized commands to volts.
	DefaultBusVoltage = 12.0

	// DefaultTickRate is the synchronization loop rate in Hz.
	DefaultTickRate = 50
)

// WrapMode selects how a sensor reports rotational position.
type WrapMode uint8

const (
	// WrapAuto wraps only revolute-continuous joints (the default).
	WrapAuto WrapMode = iota

	// WrapAlways wraps regardless of joint kind.
	WrapAlways

	// WrapNever reports the raw position for any joint kind.
	WrapNever
)

// String returns the wrap mode name as spelled in configuration files.
func (w WrapMode) String() string {
	switch w {
	case WrapAuto:
		return "auto"
	case WrapAlways:
		return "always"
	case WrapNever:
		return "never"
	default:
		return "unknown"
	}
}

// UnmarshalYAML parses a wrap mode from its config spelling.
func (w *WrapMode) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "", "auto":
		*w = WrapAuto
	case "always":
		*w = WrapAlways
	case "never":
		*w = WrapNever
	default:
		return fmt.Errorf("%w: unknown wrap mode %q", ErrInvalidDescription, s)
	}
	return nil
}

// MarshalYAML writes the config spelling.
func (w WrapMode) MarshalYAML() (any, error) {
	return w.String(), nil
}

// Actuator binds a protocol device to a motorized joint.
type Actuator struct {
	// Device is the opaque protocol identifier used on the wire.
	Device string `yaml:"device"`

	// Joint names the joint this actuator drives.
	Joint string `yaml:"joint"`

	// Motor is the catalog name of the motor (e.g. "neo", "cim").
	Motor string `yaml:"motor"`

	// GearRatio is the reduction ratio (60 means 60:1). Must be nonzero.
	GearRatio float64 `yaml:"gearRatio"`

	// Inverted flips the sign of commanded voltage.
	Inverted bool `yaml:"inverted"`
}

// Sensor binds a protocol device to a joint it measures.
type Sensor struct {
	// Device is the opaque protocol identifier used on the wire.
	Device string `yaml:"device"`

	// Joint names the joint this sensor measures.
	Joint string `yaml:"joint"`

	// TicksPerRevolution is the encoder resolution.
	TicksPerRevolution int `yaml:"ticksPerRevolution"`

	// Offset is added to the reported tick count.
	Offset int `yaml:"offset"`

	// Inverted flips the sign of the reported count.
	Inverted bool `yaml:"inverted"`

	// Wrap selects the position reporting transform. The default,
	// auto, wraps only revolute-continuous joints.
	Wrap WrapMode `yaml:"wrap"`
}

// ShouldWrap reports whether this sensor's position readings are
// wrapped into (-pi, pi] given the kind of the joint it measures.
func (s Sensor) ShouldWrap(kind JointKind) bool {
	switch s.Wrap {
	case WrapAlways:
		return true
	case WrapNever:
		return false
	default:
		return kind == RevoluteContinuous
	}
}

// Description is the immutable mechanism description a session is built from.
type Description struct {
	// Name identifies the mechanism in logs and advertisements.
	Name string `yaml:"name"`

	// BusVoltage converts normalized actuator commands to volts.
	BusVoltage float64 `yaml:"busVoltage"`

	// TickRate is the synchronization loop rate in Hz.
	TickRate int `yaml:"tickRate"`

	Joints    []Joint    `yaml:"joints"`
	Actuators []Actuator `yaml:"actuators"`
	Sensors   []Sensor   `yaml:"sensors"`
}

// Joint returns the joint with the given ID.
func (d *Description) JointByID(id string) (Joint, bool) {
	for _, j := range d.Joints {
		if j.ID == id {
			return j, true
		}
	}
	return Joint{}, false
}

// Validate checks internal consistency: unique IDs, resolvable joint
// references, and physically meaningful device parameters.
func (d *Description) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing mechanism name", ErrInvalidDescription)
	}
	if len(d.Joints) == 0 {
		return fmt.Errorf("%w: no joints defined", ErrInvalidDescription)
	}

	seenJoints := make(map[string]bool, len(d.Joints))
	for _, j := range d.Joints {
		if j.ID == "" {
			return fmt.Errorf("%w: joint with empty id", ErrInvalidDescription)
		}
		if seenJoints[j.ID] {
			return fmt.Errorf("%w: duplicate joint %q", ErrInvalidDescription, j.ID)
		}
		if j.Kind == 0 {
			return fmt.Errorf("%w: joint %q has no kind", ErrInvalidDescription, j.ID)
		}
		seenJoints[j.ID] = true
	}

	for _, a := range d.Actuators {
		if a.Device == "" {
			return fmt.Errorf("%w: actuator with empty device id", ErrInvalidDescription)
		}
		if !seenJoints[a.Joint] {
			return fmt.Errorf("%w: actuator %q references unknown joint %q", ErrInvalidDescription, a.Device, a.Joint)
		}
		if a.GearRatio == 0 {
			return fmt.Errorf("%w: actuator %q has zero gear ratio", ErrInvalidDescription, a.Device)
		}
		if a.Motor == "" {
			return fmt.Errorf("%w: actuator %q has no motor", ErrInvalidDescription, a.Device)
		}
	}

	for _, s := range d.Sensors {
		if s.Device == "" {
			return fmt.Errorf("%w: sensor with empty device id", ErrInvalidDescription)
		}
		if !seenJoints[s.Joint] {
			return fmt.Errorf("%w: sensor %q references unknown joint %q", ErrInvalidDescription, s.Device, s.Joint)
		}
		if s.TicksPerRevolution <= 0 {
			return fmt.Errorf("%w: sensor %q has non-positive resolution", ErrInvalidDescription, s.Device)
		}
	}

	return nil
}

// applyDefaults fills absent fields.
func (d *Description) applyDefaults() {
	if d.BusVoltage == 0 {
		d.BusVoltage = DefaultBusVoltage
	}
	if d.TickRate == 0 {
		d.TickRate = DefaultTickRate
	}
}

// Parse parses and validates a YAML mechanism description.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads, parses, and validates a YAML mechanism description file.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mechanism description: %w", err)
	}
	return Parse(data)
}
