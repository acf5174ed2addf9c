// Package motor implements a physics-based DC motor model.
//
// The model uses the standard DC motor equations
//
//	V = I*R + w/Kv   (voltage)
//	T = Kt*I         (torque)
//
// to turn an applied voltage and the current output-shaft speed into
// output torque through a gearbox. Electrical constants are derived
// from the spec-sheet numbers every manufacturer publishes: free speed,
// stall torque, stall current, and nominal voltage.
//
// The model never clamps current or torque. Negative current
// (regeneration, producing braking torque) is reported as-is; callers
// that want saturation apply it themselves.
package motor
