package physics

import (
	"fmt"
	"math"
	"time"

	"github.com/subsystemsim/halbridge/pkg/mechanism"
)

// Internal integration step of the built-in engine. External engines
// commonly sub-step at this granularity too.
const simpleTimestep = time.Second / 240

// Default joint parameters when a description carries none.
const (
	DefaultInertia = 1.0
	DefaultDamping = 0.1
)

// JointParams tunes one joint of the built-in engine.
type JointParams struct {
	// Inertia about the joint axis (or mass, for prismatic joints).
	Inertia float64

	// Damping is the viscous friction coefficient.
	Damping float64

	// Lower and Upper are travel limits for bounded joints.
	Lower, Upper float64
}

// simpleJoint is the state of one degree of freedom.
type simpleJoint struct {
	kind     mechanism.JointKind
	params   JointParams
	position float64
	velocity float64
	torque   float64
}

// SimpleEngine is a minimal 1-DOF-per-joint torque integrator. It has
// no link geometry or coupling between joints; each joint is an
// independent damped inertia. It exists so the bridge is runnable and
// testable without an external engine, which plugs in through the
// Oracle interface instead.
type SimpleEngine struct {
	joints map[string]*simpleJoint
}

var _ Oracle = (*SimpleEngine)(nil)

// NewSimpleEngine builds an engine for the joints of a mechanism
// description with default parameters.
func NewSimpleEngine(desc *mechanism.Description) *SimpleEngine {
	e := &SimpleEngine{joints: make(map[string]*simpleJoint, len(desc.Joints))}
	for _, j := range desc.Joints {
		e.joints[j.ID] = &simpleJoint{
			kind:   j.Kind,
			params: JointParams{Inertia: DefaultInertia, Damping: DefaultDamping},
		}
	}
	return e
}

// SetJointParams overrides the parameters of one joint.
func (e *SimpleEngine) SetJointParams(joint string, params JointParams) error {
	j, ok := e.joints[joint]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJoint, joint)
	}
	if params.Inertia <= 0 {
		params.Inertia = DefaultInertia
	}
	if params.Damping < 0 {
		params.Damping = 0
	}
	j.params = params
	return nil
}

// SetJointTorque applies a torque to a joint for the next step.
func (e *SimpleEngine) SetJointTorque(joint string, torque float64) error {
	j, ok := e.joints[joint]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJoint, joint)
	}
	j.torque = torque
	return nil
}

// StepSimulation advances all joints by dt using semi-implicit Euler
// with internal sub-stepping.
func (e *SimpleEngine) StepSimulation(dt time.Duration) error {
	if dt <= 0 {
		return fmt.Errorf("non-positive step %v", dt)
	}

	substeps := int(dt / simpleTimestep)
	if substeps < 1 {
		substeps = 1
	}
	h := dt.Seconds() / float64(substeps)

	for i := 0; i < substeps; i++ {
		for _, j := range e.joints {
			accel := (j.torque - j.params.Damping*j.velocity) / j.params.Inertia
			j.velocity += accel * h
			j.position += j.velocity * h
			e.enforceLimits(j)
		}
	}
	return nil
}

// enforceLimits stops a bounded joint at its travel limits. Continuous
// joints are never limited; their raw position grows without bound.
func (e *SimpleEngine) enforceLimits(j *simpleJoint) {
	if j.kind != mechanism.RevoluteBounded && j.kind != mechanism.Prismatic {
		return
	}
	if j.params.Lower == 0 && j.params.Upper == 0 {
		return // no limits configured
	}
	if j.position < j.params.Lower {
		j.position = j.params.Lower
		j.velocity = math.Max(j.velocity, 0)
	}
	if j.position > j.params.Upper {
		j.position = j.params.Upper
		j.velocity = math.Min(j.velocity, 0)
	}
}

// JointState returns the raw position and velocity of a joint.
func (e *SimpleEngine) JointState(joint string) (float64, float64, error) {
	j, ok := e.joints[joint]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownJoint, joint)
	}
	return j.position, j.velocity, nil
}
