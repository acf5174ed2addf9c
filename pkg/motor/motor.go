package motor

import (
	"errors"
	"fmt"
	"math"
)

// Motor model errors.
var (
	ErrZeroGearRatio = errors.New("gear ratio must be nonzero")
	ErrBadSpec       = errors.New("invalid motor spec")
)

// DefaultEfficiency is the gearbox efficiency applied to output torque.
const DefaultEfficiency = 0.80

// Spec holds the published electrical constants of a DC motor.
type Spec struct {
	// Name identifies the motor (catalog key).
	Name string `yaml:"name"`

	// FreeSpeedRPM is the no-load speed at nominal voltage, in RPM.
	FreeSpeedRPM float64 `yaml:"freeSpeedRPM"`

	// StallTorque is the torque at zero speed, in N·m.
	StallTorque float64 `yaml:"stallTorque"`

	// StallCurrent is the current drawn at stall, in A.
	StallCurrent float64 `yaml:"stallCurrent"`

	// FreeCurrent is the current drawn at free speed, in A.
	FreeCurrent float64 `yaml:"freeCurrent"`

	// NominalVoltage is the rated supply voltage, in V.
	NominalVoltage float64 `yaml:"nominalVoltage"`
}

// Validate checks that the spec derives finite, nonzero constants.
func (s Spec) Validate() error {
	if s.FreeSpeedRPM <= 0 {
		return fmt.Errorf("%w: free speed must be positive", ErrBadSpec)
	}
	if s.StallTorque <= 0 {
		return fmt.Errorf("%w: stall torque must be positive", ErrBadSpec)
	}
	if s.StallCurrent <= 0 {
		return fmt.Errorf("%w: stall current must be positive", ErrBadSpec)
	}
	if s.NominalVoltage <= 0 {
		return fmt.Errorf("%w: nominal voltage must be positive", ErrBadSpec)
	}
	return nil
}

// FreeSpeed returns the no-load speed in rad/s.
func (s Spec) FreeSpeed() float64 {
	return s.FreeSpeedRPM * 2 * math.Pi / 60
}

// Motor is an immutable DC motor model with derived constants.
type Motor struct {
	spec Spec

	// resistance is the winding resistance, in ohm.
	resistance float64

	// torqueConstant is Kt, in N·m per A.
	torqueConstant float64

	// velocityConstant is Kv, in rad/s per V.
	velocityConstant float64

	// efficiency is the multiplicative gearbox efficiency.
	efficiency float64
}

// New builds a motor model from a spec with the default gearbox efficiency.
func New(spec Spec) (*Motor, error) {
	return NewWithEfficiency(spec, DefaultEfficiency)
}

// NewWithEfficiency builds a motor model with a custom gearbox efficiency.
func NewWithEfficiency(spec Spec, efficiency float64) (*Motor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if efficiency <= 0 || efficiency > 1 {
		return nil, fmt.Errorf("%w: efficiency %v out of (0, 1]", ErrBadSpec, efficiency)
	}

	return &Motor{
		spec:             spec,
		resistance:       spec.NominalVoltage / spec.StallCurrent,
		torqueConstant:   spec.StallTorque / spec.StallCurrent,
		velocityConstant: spec.FreeSpeed() / spec.NominalVoltage,
		efficiency:       efficiency,
	}, nil
}

// Spec returns the spec the motor was built from.
func (m *Motor) Spec() Spec {
	return m.spec
}

// Resistance returns the derived winding resistance in ohm.
func (m *Motor) Resistance() float64 {
	return m.resistance
}

// TorqueConstant returns Kt in N·m per A.
func (m *Motor) TorqueConstant() float64 {
	return m.torqueConstant
}

// VelocityConstant returns Kv in rad/s per V.
func (m *Motor) VelocityConstant() float64 {
	return m.velocityConstant
}

// Torque computes the output torque in N·m for an applied voltage and
// the current OUTPUT-shaft angular velocity in rad/s, through a gearbox
// with the given reduction ratio (60 means 60:1).
//
// The motor shaft spins gearRatio times faster than the output, so the
// back-EMF is taken at motor-shaft speed. Current is not clamped: a
// spinning motor under reversed voltage draws more than stall current,
// and an overdriven motor regenerates with negative current.
func (m *Motor) Torque(voltage, angularVelocity, gearRatio float64) (float64, error) {
	if gearRatio == 0 {
		return 0, ErrZeroGearRatio
	}

	motorVelocity := angularVelocity * gearRatio
	backEMF := motorVelocity / m.velocityConstant
	current := (voltage - backEMF) / m.resistance
	motorTorque := m.torqueConstant * current

	return motorTorque * gearRatio * m.efficiency, nil
}

// StallOutputTorque returns the maximum (stall) output torque through a gearbox.
func (m *Motor) StallOutputTorque(gearRatio float64) float64 {
	return m.spec.StallTorque * gearRatio * m.efficiency
}

// FreeOutputSpeed returns the no-load output-shaft speed in rad/s through a gearbox.
func (m *Motor) FreeOutputSpeed(gearRatio float64) float64 {
	return m.spec.FreeSpeed() / gearRatio
}
