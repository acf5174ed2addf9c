package physics

import (
	"errors"
	"time"
)

// ErrUnknownJoint reports a joint name the engine does not model.
// The session treats this as fatal: it means the device registry was
// built from a mechanism description the engine disagrees with.
var ErrUnknownJoint = errors.New("unknown joint")

// Oracle is the interface a physics engine exposes to the bridge.
//
// Implementations are owned exclusively by the synchronization loop
// while a session runs; calls are never concurrent.
type Oracle interface {
	// SetJointTorque applies a torque (or force, for prismatic joints)
	// to a joint for the next simulation step.
	SetJointTorque(joint string, torque float64) error

	// StepSimulation advances the simulation by dt. Engines may
	// sub-step internally for stability.
	StepSimulation(dt time.Duration) error

	// JointState returns the current raw position and velocity of a
	// joint. Position is unbounded for continuous joints.
	JointState(joint string) (position, velocity float64, err error)
}
