// Package mechanism describes the simulated mechanism: its joints and
// the protocol devices (actuators and sensors) bound to them.
//
// A description is loaded once from a YAML file at session setup and is
// immutable afterwards. It is the single source of truth the device
// registry is built from; the physics engine is expected to expose the
// same joint list, and any disagreement discovered at runtime is fatal
// to the session.
package mechanism
