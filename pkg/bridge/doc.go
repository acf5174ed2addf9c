// Package bridge drives a simulated mechanism from an external control
// peer over the websocket protocol.
//
// A Session owns one connection's worth of state: the device registry,
// the physics oracle, and the fixed-rate synchronization loop that
// applies peer commands as motor torque and reports sensor state back
// as delta-only updates. A Bridge dials the peer, runs sessions, and
// redials with exponential backoff when the peer goes away.
package bridge
