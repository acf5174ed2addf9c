// Package registry maps protocol device identifiers to mechanism
// joints and tracks the per-device state the protocol needs:
// initialization, latest commands, and last-published values for
// delta suppression.
//
// A registry is built once at session setup from the mechanism
// description and is owned exclusively by the synchronization loop for
// the session's lifetime; it is not safe for concurrent use and does
// not need to be. Teardown of the session discards the registry, so a
// reconnecting peer always starts from a clean slate with no stale
// delta-tracking state.
//
// The single most important property enforced here: a sensor publishes
// nothing, no matter how its value changes, until the peer's init
// signal for that device has been observed. Publishing earlier
// desynchronizes the peer's device table and the peer eventually
// abandons the connection.
package registry
