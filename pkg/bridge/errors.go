package bridge

import "errors"

// Bridge errors.
var (
	// ErrInconsistentMechanism indicates the registry and the physics
	// oracle disagree about the mechanism, such as a device bound to a
	// joint the oracle does not simulate. This is a configuration
	// defect; reconnecting cannot fix it, so it ends the bridge.
	ErrInconsistentMechanism = errors.New("inconsistent mechanism")
)
