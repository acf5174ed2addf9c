package physics

import "math"

// WrapAngle maps an unbounded rotation to the bounded range (-pi, pi].
//
// The mapping is many-to-one and 2*pi-periodic: raw values a full turn
// apart report the same angle. It applies to positions only; velocity
// has no periodic ambiguity and is reported as-is.
func WrapAngle(raw float64) float64 {
	wrapped := math.Mod(raw+math.Pi, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	wrapped -= math.Pi
	if wrapped == -math.Pi {
		return math.Pi
	}
	return wrapped
}
