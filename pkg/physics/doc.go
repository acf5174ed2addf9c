// Package physics defines the interface the bridge expects from a
// rigid-body physics engine, the bounded-angle reporting transform,
// and a minimal built-in engine for running without an external one.
//
// The engine is an oracle: the bridge applies joint torques, steps the
// simulation once per tick, and reads joint state back. Raw joint
// positions are owned by the engine and may grow without bound for
// continuous joints; the bridge never clamps them. Joint limits, when
// a mechanism has them, are the engine's business and are enforced
// against the raw position, never against the wrapped report.
package physics
