// Package wire defines the JSON wire format for the HAL simulation
// device-state protocol.
//
// Every message is a JSON text frame with the envelope
//
//	{"type": <deviceType>, "device": <id>, "data": {<field>: <value>}}
//
// Field keys carry a direction prefix:
//   - "<" the peer is commanding (actuator speed, device init signal)
//   - ">" the bridge is reporting (sensor count, sample period)
//
// The protocol is delta-only: a field is never sent unless its value
// changed since the last send for that device and field, and a sensor
// never reports before its init command has been observed. Both rules
// are enforced by the registry package; this package only encodes,
// decodes, and turns inbound messages into typed events so that no
// stringly-typed field dispatch leaks past the codec boundary.
package wire
